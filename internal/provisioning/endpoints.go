package provisioning

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/compute"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// DeriveEndpoints builds the channel endpoints from an instance address
func DeriveEndpoints(channelID, publicIP, privateIP string) models.Endpoints {
	return models.Endpoints{
		PublicIP:        publicIP,
		PrivateIP:       privateIP,
		HLSURL:          fmt.Sprintf("http://%s:%d/hls/%s/playlist.m3u8", publicIP, compute.TranscodingPort, channelID),
		RTMPURL:         fmt.Sprintf("rtmp://%s:%d/live/%s", publicIP, compute.RTMPPort, channelID),
		TranscodingURL:  fmt.Sprintf("http://%s:%d/api/status", publicIP, compute.TranscodingPort),
		HealthCheckURL:  fmt.Sprintf("http://%s:%d/health", publicIP, compute.TranscodingPort),
		StatusServerURL: fmt.Sprintf("http://%s:%d/health", publicIP, compute.StatusServerPort),
	}
}

// mockInstance fabricates a placeholder instance shaped like a real one
func mockInstance() *compute.Instance {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")

	return &compute.Instance{
		ID:             "i-" + hex[:17],
		State:          compute.StateRunning,
		PublicAddress:  fmt.Sprintf("%d.%d.%d.%d", 1+rand.Intn(223), rand.Intn(256), rand.Intn(256), 1+rand.Intn(254)),
		PrivateAddress: fmt.Sprintf("10.0.1.%d", rand.Intn(255)),
	}
}
