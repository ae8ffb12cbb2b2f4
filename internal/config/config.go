// Package config centralizes environment-driven settings and feature
// toggles so the rest of the tree never reads os.Getenv directly
// (internal/auth keeps its own cached secret lookup).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"statuswise.org/internal/authz"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/project"
)

// Config is the resolved runtime configuration for the API process.
type Config struct {
	Addr        string
	DatabaseDSN string

	BillingEnabled bool
	AdminEnabled   bool
	WebhookSecret  string

	BootstrapAdminEmail string

	Gates  authz.GateTable
	Limits project.LimitTable
}

// Load reads STATUSWISE_* variables and parses the optional gate and
// limit tables. It does not validate; call Validate before serving.
func Load() (Config, error) {
	cfg := Config{
		Addr:                getenv("STATUSWISE_HTTP_ADDR", ":8080"),
		DatabaseDSN:         os.Getenv("STATUSWISE_PG_DSN"),
		BillingEnabled:      envBool("STATUSWISE_ENABLE_BILLING"),
		AdminEnabled:        envBool("STATUSWISE_ENABLE_ADMIN"),
		WebhookSecret:       os.Getenv("STATUSWISE_WEBHOOK_SECRET"),
		BootstrapAdminEmail: strings.TrimSpace(os.Getenv("STATUSWISE_BOOTSTRAP_ADMIN_EMAIL")),
		Gates:               authz.DefaultGateTable(),
		Limits:              project.DefaultLimitTable(),
	}

	if raw := os.Getenv("STATUSWISE_TIER_GATES"); raw != "" {
		gates, err := authz.ParseGateTable([]byte(raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse STATUSWISE_TIER_GATES: %w", err)
		}
		cfg.Gates = gates
	}
	if raw := os.Getenv("STATUSWISE_TIER_LIMITS"); raw != "" {
		limits, err := parseLimitTable([]byte(raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse STATUSWISE_TIER_LIMITS: %w", err)
		}
		cfg.Limits = limits
	}
	return cfg, nil
}

// Validate reports configuration errors keyed by concern, mirroring
// startup checks: a token secret is always required, and enabling
// billing without a webhook secret would silently accept forged events.
func (c Config) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(os.Getenv("STATUSWISE_AUTH_SECRET")) == "" {
		errs["security"] = "STATUSWISE_AUTH_SECRET must be set to a secure value"
	}
	if c.BillingEnabled && strings.TrimSpace(c.WebhookSecret) == "" {
		errs["billing"] = "STATUSWISE_WEBHOOK_SECRET is required when billing is enabled"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envBool treats "true", "1", "yes" and "on" (any case) as true.
func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func parseLimitTable(raw []byte) (project.LimitTable, error) {
	var decoded map[string]project.Limits
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	table := make(project.LimitTable, len(decoded))
	for name, limits := range decoded {
		tier := entitlement.Tier(strings.ToLower(name))
		if !tier.Valid() {
			return nil, fmt.Errorf("unknown tier %q", name)
		}
		if limits.MaxProjects < 0 || limits.MaxIncidentsPerProject < 0 {
			return nil, fmt.Errorf("negative limit for tier %q", name)
		}
		table[tier] = limits
	}
	return table, nil
}
