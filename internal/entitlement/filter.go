// Package entitlement strips channel HLS features a plan does not grant.
//
// Filter is pure and idempotent: Filter(p, Filter(p, d)) == Filter(p, d).
// Numeric plan limits (DVR duration, catch-up duration) are advisory and are
// not clamped here.
package entitlement

import (
	"github.com/therealutkarshpriyadarshi/streamflow/internal/plans"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Feature names accepted by HasAccess
const (
	FeatureGeoLocking       = "geoLocking"
	FeatureIPRestrictions   = "ipRestrictions"
	FeatureCatchupTV        = "catchupTv"
	FeatureVTT              = "vtt"
	Feature4K               = "4k"
	FeatureMultipleChannels = "multipleChannels"
)

// Filter returns the draft reduced to what the tier allows
func Filter(tier models.PlanTier, draft models.HLSSettings) models.HLSSettings {
	allowed := tier.HLSSettings
	out := draft.Clone()

	out.VTTEnabled = draft.VTTEnabled && allowed.VTTEnabled
	out.CatchupTVEnabled = draft.CatchupTVEnabled && allowed.CatchupTVEnabled

	out.GeoLocking.Enabled = draft.GeoLocking.Enabled && allowed.GeoLocking.Enabled
	if !out.GeoLocking.Enabled {
		out.GeoLocking.AllowedCountries = []string{}
		out.GeoLocking.BlockedCountries = []string{}
	}

	out.IPRestrictions.Enabled = draft.IPRestrictions.Enabled && allowed.IPRestrictions.Enabled
	if !out.IPRestrictions.Enabled {
		out.IPRestrictions.AllowedIPs = []string{}
		out.IPRestrictions.BlockedIPs = []string{}
	}

	// Only 4K is gated by plan; other rungs pass through.
	uhd := tier.Allows4K()
	profiles := make([]models.QualityProfile, 0, len(draft.QualityProfiles))
	for _, p := range draft.QualityProfiles {
		if p.Name == models.Profile4K && !uhd {
			continue
		}
		profiles = append(profiles, p)
	}
	out.QualityProfiles = profiles

	return out
}

// ForPlan resolves the plan key and filters the draft. An unknown key is
// treated as "no entitlements": every optional feature is forced off and the
// quality ladder is limited to the base set.
func ForPlan(planKey string, draft models.HLSSettings) models.HLSSettings {
	tier, err := plans.Get(planKey)
	if err != nil {
		return noEntitlements(draft)
	}
	return Filter(tier, draft)
}

func noEntitlements(draft models.HLSSettings) models.HLSSettings {
	base := make(map[string]bool)
	for _, p := range plans.BaseProfiles() {
		base[p.Name] = true
	}

	out := draft.Clone()
	out.VTTEnabled = false
	out.CatchupTVEnabled = false
	out.GeoLocking = models.GeoLocking{AllowedCountries: []string{}, BlockedCountries: []string{}}
	out.IPRestrictions = models.IPRestrictions{AllowedIPs: []string{}, BlockedIPs: []string{}}

	profiles := make([]models.QualityProfile, 0, len(draft.QualityProfiles))
	for _, p := range draft.QualityProfiles {
		if base[p.Name] {
			profiles = append(profiles, p)
		}
	}
	out.QualityProfiles = profiles

	return out
}

// HasAccess reports whether a plan grants a named feature. Unrecognised
// feature names are not gated.
func HasAccess(planKey, feature string) bool {
	tier, err := plans.Get(planKey)
	if err != nil {
		switch feature {
		case FeatureGeoLocking, FeatureIPRestrictions, FeatureCatchupTV, FeatureVTT, Feature4K, FeatureMultipleChannels:
			return false
		}
		return true
	}

	switch feature {
	case FeatureGeoLocking:
		return tier.HLSSettings.GeoLocking.Enabled
	case FeatureIPRestrictions:
		return tier.HLSSettings.IPRestrictions.Enabled
	case FeatureCatchupTV:
		return tier.HLSSettings.CatchupTVEnabled
	case FeatureVTT:
		return tier.HLSSettings.VTTEnabled
	case Feature4K:
		return tier.Allows4K()
	case FeatureMultipleChannels:
		return tier.Channels > 1
	default:
		return true
	}
}

// Violations lists the features a settings snapshot enables beyond the plan.
// An empty result means the snapshot is within entitlements.
func Violations(planKey string, settings models.HLSSettings) []string {
	var out []string
	check := func(feature string, enabled bool) {
		if enabled && !HasAccess(planKey, feature) {
			out = append(out, feature)
		}
	}

	check(FeatureVTT, settings.VTTEnabled)
	check(FeatureGeoLocking, settings.GeoLocking.Enabled)
	check(FeatureIPRestrictions, settings.IPRestrictions.Enabled)
	check(FeatureCatchupTV, settings.CatchupTVEnabled)
	check(Feature4K, settings.HasProfile(models.Profile4K))

	return out
}
