package compute

import (
	"bytes"
	"fmt"
	"text/template"
)

// Ports served by a bootstrapped instance. Channel endpoints are derived
// from these, so changing one breaks deployed channels.
const (
	TranscodingPort  = 8000
	RTMPPort         = 1935
	StatusServerPort = 8080
)

// BootstrapParams feed the instance user-data script
type BootstrapParams struct {
	ChannelID     string
	RepositoryURL string
}

type bootstrapData struct {
	BootstrapParams
	TranscodingPort  int
	RTMPPort         int
	StatusServerPort int
}

var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(`#!/bin/bash
set -e
exec > >(tee /var/log/user-data.log|logger -t user-data -s 2>/dev/console) 2>&1

echo "=== StreamFlow setup for channel {{.ChannelID}} ==="

apt-get update -y
apt-get install -y docker.io git curl build-essential ffmpeg nginx libnginx-mod-rtmp

systemctl start docker
systemctl enable docker
usermod -aG docker ubuntu

curl -fsSL https://deb.nodesource.com/setup_lts.x | bash -
apt-get install -y nodejs

mkdir -p /home/ubuntu/projects
cd /home/ubuntu/projects
git clone {{.RepositoryURL}} node-transcoding

cd node-transcoding
npm install

cat >/etc/systemd/system/node-transcoding.service <<'UNIT'
[Unit]
Description=Node Transcoding Service
After=network.target

[Service]
User=ubuntu
Group=ubuntu
WorkingDirectory=/home/ubuntu/projects/node-transcoding
ExecStart=/usr/bin/npm start
Restart=on-failure
Environment=NODE_ENV=production
Environment=PORT={{.TranscodingPort}}
Environment=CHANNEL_ID={{.ChannelID}}
SyslogIdentifier=node-transcoding

[Install]
WantedBy=multi-user.target
UNIT

chown -R ubuntu:ubuntu /home/ubuntu/projects
systemctl daemon-reload
systemctl enable node-transcoding.service
systemctl start node-transcoding.service

mkdir -p /var/www/hls
chown -R www-data:www-data /var/www/hls

cat >>/etc/nginx/nginx.conf <<'RTMP'

rtmp {
    server {
        listen {{.RTMPPort}};
        chunk_size 4096;

        application live {
            live on;
            record off;
            hls on;
            hls_path /var/www/hls;
            hls_nested on;
            hls_fragment 6s;
        }
    }
}
RTMP

cat >/etc/nginx/conf.d/streamflow-status.conf <<'STATUS'
server {
    listen {{.StatusServerPort}};

    location /health {
        default_type application/json;
        return 200 '{"status":"ok","channel_id":"{{.ChannelID}}"}';
    }

    location /stat {
        rtmp_stat all;
    }
}
STATUS

nginx -t
systemctl enable nginx
systemctl restart nginx

echo "=== StreamFlow setup complete ==="
`))

// RenderBootstrap renders the user-data script for one channel
func RenderBootstrap(params BootstrapParams) (string, error) {
	if params.ChannelID == "" {
		return "", fmt.Errorf("channel id is required")
	}
	if params.RepositoryURL == "" {
		return "", fmt.Errorf("repository url is required")
	}

	var buf bytes.Buffer
	data := bootstrapData{
		BootstrapParams:  params,
		TranscodingPort:  TranscodingPort,
		RTMPPort:         RTMPPort,
		StatusServerPort: StatusServerPort,
	}
	if err := bootstrapTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render bootstrap script: %w", err)
	}
	return buf.String(), nil
}
