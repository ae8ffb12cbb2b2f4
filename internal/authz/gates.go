package authz

import (
	"encoding/json"
	"fmt"

	"statuswise.org/internal/entitlement"
)

// Gate declares the minimum tier and acceptable subscription statuses
// for one feature. An empty Statuses slice means "active only".
type Gate struct {
	MinTier  entitlement.Tier     `json:"min_tier"`
	Statuses []entitlement.Status `json:"statuses,omitempty"`
}

// Satisfied reports whether the entitlement clears the gate.
func (g Gate) Satisfied(ent entitlement.Entitlement) bool {
	if !ent.Tier.AtLeast(g.MinTier) {
		return false
	}
	statuses := g.Statuses
	if len(statuses) == 0 {
		statuses = []entitlement.Status{entitlement.StatusActive}
	}
	for _, s := range statuses {
		if ent.Status == s {
			return true
		}
	}
	return false
}

// GateTable maps feature names to their gates. It is configuration
// consumed by the engine, not logic.
type GateTable map[string]Gate

// Feature names used by the project/incident services. Gating lives in
// configuration; these constants only keep call sites typo-free.
const (
	FeatureCustomDomain        = "custom_domain"
	FeatureAdvancedAnalytics   = "advanced_analytics"
	FeatureWebhookNotification = "webhook_notifications"
	FeatureIncidentAutomation  = "incident_automation"
)

// DefaultGateTable mirrors the pro-only feature set of the hosted plans.
func DefaultGateTable() GateTable {
	pro := Gate{MinTier: entitlement.TierPro}
	return GateTable{
		FeatureCustomDomain:        pro,
		FeatureAdvancedAnalytics:   pro,
		FeatureWebhookNotification: pro,
		FeatureIncidentAutomation:  pro,
	}
}

// ParseGateTable decodes a JSON gate table, e.g.
// {"custom_domain":{"min_tier":"pro","statuses":["active","past_due"]}}.
func ParseGateTable(raw []byte) (GateTable, error) {
	var table GateTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse gate table: %w", err)
	}
	for feature, gate := range table {
		if !gate.MinTier.Valid() {
			return nil, fmt.Errorf("gate %q: unknown tier %q", feature, gate.MinTier)
		}
		for _, s := range gate.Statuses {
			if !s.Valid() {
				return nil, fmt.Errorf("gate %q: unknown status %q", feature, s)
			}
		}
	}
	return table, nil
}
