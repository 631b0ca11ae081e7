// Package plans is the process-wide, read-only catalog of subscription tiers.
// It is the single source of truth for channel quotas and HLS entitlements.
package plans

import (
	"errors"

	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// PlanKey identifies a subscription tier
type PlanKey string

// Known plan keys
const (
	Basic      PlanKey = "basic"
	Pro        PlanKey = "pro"
	Enterprise PlanKey = "enterprise"
)

// DefaultKey is used when an identity carries no plan at all
const DefaultKey = Basic

// ErrUnknownPlan is returned for plan keys outside the catalog
var ErrUnknownPlan = errors.New("unknown plan")

var (
	profile4K    = models.QualityProfile{Name: models.Profile4K, Resolution: "3840x2160", Bitrate: 8000, FPS: 30, Enabled: true}
	profile1080p = models.QualityProfile{Name: models.Profile1080p, Resolution: "1920x1080", Bitrate: 4000, FPS: 30, Enabled: true}
	profile720p  = models.QualityProfile{Name: models.Profile720p, Resolution: "1280x720", Bitrate: 2000, FPS: 30, Enabled: true}
	profile480p  = models.QualityProfile{Name: models.Profile480p, Resolution: "854x480", Bitrate: 1000, FPS: 30, Enabled: true}
)

// order is the display order of the catalog
var order = []PlanKey{Basic, Pro, Enterprise}

var catalog = map[PlanKey]models.PlanTier{
	Basic: {
		Key:             string(Basic),
		Name:            "Basic",
		Price:           29,
		Channels:        1,
		Features:        []string{"1 Channel", "HD Streaming", "Basic Analytics", "30min DVR"},
		QualityProfiles: []models.QualityProfile{profile720p, profile480p},
		HLSSettings: models.HLSSettings{
			VTTEnabled:    false,
			SegmentLength: 6,
			DVRDuration:   30,
		},
	},
	Pro: {
		Key:             string(Pro),
		Name:            "Pro",
		Price:           99,
		Channels:        3,
		Features:        []string{"3 Channels", "HD Streaming", "DVR Recording", "Advanced Analytics", "Geo-locking"},
		QualityProfiles: []models.QualityProfile{profile1080p, profile720p, profile480p},
		HLSSettings: models.HLSSettings{
			VTTEnabled:       true,
			SegmentLength:    6,
			DVRDuration:      120,
			GeoLocking:       models.GeoLocking{Enabled: true},
			IPRestrictions:   models.IPRestrictions{Enabled: true},
			CatchupTVEnabled: true,
			CatchupDuration:  24,
		},
	},
	Enterprise: {
		Key:             string(Enterprise),
		Name:            "Enterprise",
		Price:           299,
		Channels:        10,
		Features:        []string{"10 Channels", "4K Streaming", "DVR Recording", "Geo-locking", "Priority Support", "Catch-up TV"},
		QualityProfiles: []models.QualityProfile{profile4K, profile1080p, profile720p, profile480p},
		HLSSettings: models.HLSSettings{
			VTTEnabled:       true,
			SegmentLength:    4,
			DVRDuration:      240,
			GeoLocking:       models.GeoLocking{Enabled: true},
			IPRestrictions:   models.IPRestrictions{Enabled: true},
			CatchupTVEnabled: true,
			CatchupDuration:  168,
		},
	},
}

// BaseProfiles is the quality ladder granted when no plan applies
func BaseProfiles() []models.QualityProfile {
	return []models.QualityProfile{profile720p, profile480p}
}

// ParseKey resolves a raw plan string. An empty string maps to DefaultKey.
func ParseKey(raw string) (PlanKey, bool) {
	if raw == "" {
		return DefaultKey, true
	}
	key := PlanKey(raw)
	switch key {
	case Basic, Pro, Enterprise:
		return key, true
	default:
		return "", false
	}
}

// Get returns the tier for a raw plan key, or ErrUnknownPlan
func Get(raw string) (models.PlanTier, error) {
	key, ok := ParseKey(raw)
	if !ok {
		return models.PlanTier{}, ErrUnknownPlan
	}
	return clone(catalog[key]), nil
}

// All returns every tier in display order
func All() []models.PlanTier {
	tiers := make([]models.PlanTier, 0, len(order))
	for _, key := range order {
		tiers = append(tiers, clone(catalog[key]))
	}
	return tiers
}

// Quota returns the channel quota for a raw plan key. Unknown plans get zero.
func Quota(raw string) int {
	tier, err := Get(raw)
	if err != nil {
		return 0
	}
	return tier.Channels
}

func clone(t models.PlanTier) models.PlanTier {
	out := t
	out.Features = append([]string(nil), t.Features...)
	out.QualityProfiles = append([]models.QualityProfile(nil), t.QualityProfiles...)
	out.HLSSettings = t.HLSSettings.Clone()
	return out
}
