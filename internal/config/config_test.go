package config

import (
	"testing"

	"statuswise.org/internal/entitlement"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"STATUSWISE_HTTP_ADDR", "STATUSWISE_ENABLE_BILLING", "STATUSWISE_ENABLE_ADMIN",
		"STATUSWISE_TIER_GATES", "STATUSWISE_TIER_LIMITS",
	} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.BillingEnabled || cfg.AdminEnabled {
		t.Fatal("feature toggles must default off")
	}
	if len(cfg.Gates) == 0 {
		t.Fatal("expected default gate table")
	}
	free := cfg.Limits[entitlement.TierFree]
	if free.MaxProjects != 1 || free.MaxIncidentsPerProject != 5 {
		t.Fatalf("unexpected free limits %+v", free)
	}
}

func TestLoadToggles(t *testing.T) {
	for _, truthy := range []string{"true", "1", "yes", "ON"} {
		t.Setenv("STATUSWISE_ENABLE_BILLING", truthy)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !cfg.BillingEnabled {
			t.Fatalf("%q should enable billing", truthy)
		}
	}
	t.Setenv("STATUSWISE_ENABLE_BILLING", "nope")
	cfg, _ := Load()
	if cfg.BillingEnabled {
		t.Fatal("unexpected truthy parse")
	}
}

func TestLoadGateTableOverride(t *testing.T) {
	t.Setenv("STATUSWISE_TIER_GATES", `{"custom_domain":{"min_tier":"free"}}`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Gates) != 1 {
		t.Fatalf("expected override table, got %d gates", len(cfg.Gates))
	}
	if cfg.Gates["custom_domain"].MinTier != entitlement.TierFree {
		t.Fatalf("unexpected gate %+v", cfg.Gates["custom_domain"])
	}

	t.Setenv("STATUSWISE_TIER_GATES", `{"x":{"min_tier":"platinum"}}`)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestLoadLimitTableOverride(t *testing.T) {
	t.Setenv("STATUSWISE_TIER_LIMITS", `{"pro":{"max_projects":50,"max_incidents_per_project":500}}`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pro := cfg.Limits[entitlement.TierPro]
	if pro.MaxProjects != 50 || pro.MaxIncidentsPerProject != 500 {
		t.Fatalf("unexpected pro limits %+v", pro)
	}

	t.Setenv("STATUSWISE_TIER_LIMITS", `{"free":{"max_projects":-1}}`)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative limit")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("STATUSWISE_AUTH_SECRET", "")
	cfg := Config{}
	errs := cfg.Validate()
	if errs["security"] == "" {
		t.Fatal("expected security error when auth secret is unset")
	}

	t.Setenv("STATUSWISE_AUTH_SECRET", "s3cret")
	cfg = Config{BillingEnabled: true}
	errs = cfg.Validate()
	if errs["billing"] == "" {
		t.Fatal("expected billing error without webhook secret")
	}

	cfg = Config{BillingEnabled: true, WebhookSecret: "whsec"}
	if errs := cfg.Validate(); errs != nil {
		t.Fatalf("expected valid config, got %v", errs)
	}
}
