// Command smoke-authz drives a running API through the whole
// entitlement lifecycle: signup, login, project creation up to the FREE
// quota, a signed billing webhook upgrading the account, and the same
// operation succeeding afterwards.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"statuswise.org/internal/billing"
)

func main() {
	baseURL := os.Getenv("STATUSWISE_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	secret := os.Getenv("STATUSWISE_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("STATUSWISE_WEBHOOK_SECRET is required to sign the smoke webhook")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	email := fmt.Sprintf("smoke-%d@example.com", rand.Int63())
	password := "smoke-password"

	// Signup and login.
	var user struct {
		ID string `json:"id"`
	}
	mustPost(client, baseURL+"/v1/signup", map[string]string{
		"email": email, "password": password,
	}, nil, http.StatusCreated, &user)

	var tok struct {
		Token string `json:"token"`
	}
	mustPost(client, baseURL+"/v1/auth/token", map[string]string{
		"email": email, "password": password,
	}, nil, http.StatusOK, &tok)
	authed := map[string]string{"Authorization": "Bearer " + tok.Token}

	// FREE tier: first project fits, second hits the quota.
	var proj struct {
		ID string `json:"id"`
	}
	mustPost(client, baseURL+"/v1/projects", map[string]any{
		"name": "smoke page", "public": true,
	}, authed, http.StatusCreated, &proj)

	var denial struct {
		Reason      string `json:"reason"`
		UpgradeHint string `json:"upgrade_hint"`
	}
	mustPost(client, baseURL+"/v1/projects", map[string]any{
		"name": "one too many",
	}, authed, http.StatusForbidden, &denial)
	if denial.Reason != "TIER_INSUFFICIENT" || denial.UpgradeHint != "pro" {
		log.Fatalf("unexpected quota denial: %+v", denial)
	}

	// Signed webhook upgrades the account to PRO.
	payload, _ := json.Marshal(map[string]any{
		"event_type":               "subscription.created",
		"external_subscription_id": fmt.Sprintf("smoke-sub-%d", rand.Int63()),
		"user_reference":           user.ID,
		"sequence":                 1,
	})
	var outcome struct {
		Outcome string `json:"outcome"`
	}
	mustPost(client, baseURL+"/v1/billing/webhook", json.RawMessage(payload), map[string]string{
		"X-Signature": billing.Sign([]byte(secret), payload),
	}, http.StatusOK, &outcome)
	if outcome.Outcome != "applied" {
		log.Fatalf("webhook not applied: %+v", outcome)
	}

	// The same create now clears the quota.
	mustPost(client, baseURL+"/v1/projects", map[string]any{
		"name": "post-upgrade page",
	}, authed, http.StatusCreated, nil)

	// A duplicate delivery must acknowledge as stale.
	mustPost(client, baseURL+"/v1/billing/webhook", json.RawMessage(payload), map[string]string{
		"X-Signature": billing.Sign([]byte(secret), payload),
	}, http.StatusOK, &outcome)
	if outcome.Outcome != "stale" {
		log.Fatalf("duplicate webhook not stale: %+v", outcome)
	}

	fmt.Printf("✅ authz smoke test passed: user=%s project=%s\n", user.ID, proj.ID)
}

func mustPost(client *http.Client, url string, body any, headers map[string]string, wantStatus int, out any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal body for %s: %v", url, err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		log.Fatalf("post %s: status %d (want %d): %s", url, resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("decode %s response: %v", url, err)
		}
	}
}
