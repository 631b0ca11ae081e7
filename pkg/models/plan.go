package models

import (
	"database/sql/driver"
	"encoding/json"
)

// QualityProfile describes one rendition of the HLS ladder
type QualityProfile struct {
	Name       string `json:"name"`       // e.g., "4K", "1080p"
	Resolution string `json:"resolution"` // e.g., "1920x1080"
	Bitrate    int    `json:"bitrate"`    // in kbps
	FPS        int    `json:"fps"`
	Enabled    bool   `json:"enabled"`
}

// GeoLocking restricts playback by viewer country
type GeoLocking struct {
	Enabled          bool     `json:"enabled"`
	AllowedCountries []string `json:"allowedCountries"`
	BlockedCountries []string `json:"blockedCountries"`
}

// IPRestrictions restricts playback by viewer address or CIDR
type IPRestrictions struct {
	Enabled    bool     `json:"enabled"`
	AllowedIPs []string `json:"allowedIPs"`
	BlockedIPs []string `json:"blockedIPs"`
}

// HLSSettings is the per-channel HLS configuration. The same shape is used
// for a caller's draft, a plan's entitlements and a channel's sanitized snapshot.
type HLSSettings struct {
	QualityProfiles  []QualityProfile `json:"qualityProfiles"`
	VTTEnabled       bool             `json:"vttEnabled"`
	SegmentLength    int              `json:"segmentLength"` // in seconds
	DVRDuration      int              `json:"dvrDuration"`   // in minutes
	GeoLocking       GeoLocking       `json:"geoLocking"`
	IPRestrictions   IPRestrictions   `json:"ipRestrictions"`
	CatchupTVEnabled bool             `json:"catchupTvEnabled"`
	CatchupDuration  int              `json:"catchupDuration"` // in hours
}

// Value implements driver.Valuer for database storage
func (s HLSSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for database retrieval
func (s *HLSSettings) Scan(value interface{}) error {
	if value == nil {
		*s = HLSSettings{}
		return nil
	}

	bytes, ok := asBytes(value)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// HasProfile reports whether a profile with the given name is present
func (s HLSSettings) HasProfile(name string) bool {
	for _, p := range s.QualityProfiles {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate slices freely
func (s HLSSettings) Clone() HLSSettings {
	out := s
	if s.QualityProfiles != nil {
		out.QualityProfiles = make([]QualityProfile, len(s.QualityProfiles))
		copy(out.QualityProfiles, s.QualityProfiles)
	}
	out.GeoLocking.AllowedCountries = copyStrings(s.GeoLocking.AllowedCountries)
	out.GeoLocking.BlockedCountries = copyStrings(s.GeoLocking.BlockedCountries)
	out.IPRestrictions.AllowedIPs = copyStrings(s.IPRestrictions.AllowedIPs)
	out.IPRestrictions.BlockedIPs = copyStrings(s.IPRestrictions.BlockedIPs)
	return out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// PlanTier is a subscription tier with its channel quota and HLS entitlements
type PlanTier struct {
	Key             string           `json:"key"`
	Name            string           `json:"name"`
	Price           int              `json:"price"` // USD per month
	Channels        int              `json:"channels"`
	Features        []string         `json:"features"`
	QualityProfiles []QualityProfile `json:"qualityProfiles"`
	HLSSettings     HLSSettings      `json:"hlsSettings"`
}

// Allows4K reports whether the tier's own profile list carries a 4K entry
func (p PlanTier) Allows4K() bool {
	for _, q := range p.QualityProfiles {
		if q.Name == Profile4K {
			return true
		}
	}
	return false
}

// Profile name constants
const (
	Profile4K    = "4K"
	Profile1080p = "1080p"
	Profile720p  = "720p"
	Profile480p  = "480p"
)
