package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"statuswise.org/internal/auth"
	"statuswise.org/internal/authz"
	"statuswise.org/internal/billing"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/group"
	"statuswise.org/internal/identity"
	"statuswise.org/internal/project"
	"statuswise.org/internal/stream"
)

const webhookSecret = "whsec-test"

type testEnv struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	users        *identity.InMemory
	entitlements *entitlement.InMemory
	identity     *identity.Service
}

func newTestAPI(t *testing.T, adminEnabled bool) *testEnv {
	t.Helper()

	t.Setenv("STATUSWISE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	users := identity.NewInMemory()
	ents := entitlement.NewInMemory()

	idSvc, err := identity.NewService(users, ents)
	if err != nil {
		t.Fatalf("identity.NewService: %v", err)
	}
	engine, err := authz.NewEngine(ents, authz.DefaultGateTable())
	if err != nil {
		t.Fatalf("authz.NewEngine: %v", err)
	}
	groupStore := group.NewInMemory()
	engine.UseMembership(groupStore)
	groups, err := group.NewService(groupStore, users, engine)
	if err != nil {
		t.Fatalf("group.NewService: %v", err)
	}
	events := stream.New()
	projects, err := project.NewService(project.NewInMemory(), engine, ents, project.DefaultLimitTable(), events, groupStore)
	if err != nil {
		t.Fatalf("project.NewService: %v", err)
	}
	reconciler, err := billing.NewReconciler(webhookSecret, users, ents)
	if err != nil {
		t.Fatalf("billing.NewReconciler: %v", err)
	}

	api := New(ReadyProbe{}, "test", Services{
		Identity:     idSvc,
		Engine:       engine,
		Entitlements: ents,
		Projects:     projects,
		Groups:       groups,
		Reconciler:   reconciler,
		Stream:       events,
		AdminEnabled: adminEnabled,
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{
		baseURL:      srv.URL,
		client:       srv.Client(),
		t:            t,
		users:        users,
		entitlements: ents,
		identity:     idSvc,
	}
}

func (e *testEnv) do(method, path string, body []byte, headers map[string]string) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(method, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (e *testEnv) post(path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
	}
	return e.do(http.MethodPost, path, payload, headers)
}

func (e *testEnv) get(path string, headers map[string]string) *http.Response {
	e.t.Helper()
	return e.do(http.MethodGet, path, nil, headers)
}

func (e *testEnv) signup(email, password string) identity.User {
	e.t.Helper()
	resp := e.post("/v1/signup", map[string]string{"email": email, "password": password}, nil)
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("signup status %d", resp.StatusCode)
	}
	return decode[identity.User](e.t, resp)
}

func (e *testEnv) token(email, password string) string {
	e.t.Helper()
	resp := e.post("/v1/auth/token", map[string]string{"email": email, "password": password}, nil)
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("token status %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](e.t, resp)
	if payload.Token == "" {
		e.t.Fatal("empty token issued")
	}
	return payload.Token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestAPI(t, false)

	resp := env.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["service"] != "statuswise-api" {
		t.Fatalf("unexpected healthz body %v", body)
	}

	resp = env.get("/v1/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get("/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSignupAndLoginFlow(t *testing.T) {
	env := newTestAPI(t, false)

	u := env.signup("User@Example.com", "hunter22")
	if u.Email != "user@example.com" {
		t.Fatalf("email not normalized: %s", u.Email)
	}
	if u.IsAdmin {
		t.Fatal("signup must never mint admins")
	}

	// The password hash must never leave the service.
	resp := env.post("/v1/signup", map[string]string{"email": "second@example.com", "password": "hunter22"}, nil)
	defer resp.Body.Close()
	raw := decode[map[string]any](t, resp)
	if _, leaked := raw["PasswordHash"]; leaked {
		t.Fatal("password hash serialized")
	}

	resp = env.post("/v1/signup", map[string]string{"email": "user@example.com", "password": "other"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup status %d", resp.StatusCode)
	}
	resp.Body.Close()

	token := env.token("user@example.com", "hunter22")

	resp = env.post("/v1/auth/token", map[string]string{"email": "user@example.com", "password": "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get("/v1/account/entitlement", authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("entitlement status %d", resp.StatusCode)
	}
	ent := decode[entitlement.Entitlement](t, resp)
	if ent.Tier != entitlement.TierFree || ent.Status != entitlement.StatusActive {
		t.Fatalf("unexpected entitlement %+v", ent)
	}

	resp = env.get("/v1/account/entitlement", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated entitlement status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProjectAndIncidentFlow(t *testing.T) {
	env := newTestAPI(t, false)
	env.signup("owner@example.com", "hunter22")
	env.signup("other@example.com", "hunter22")
	owner := authHeaders(env.token("owner@example.com", "hunter22"))
	other := authHeaders(env.token("other@example.com", "hunter22"))

	resp := env.post("/v1/projects", map[string]any{"name": "status page", "public": true}, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d", resp.StatusCode)
	}
	p := decode[project.Project](t, resp)

	// FREE tier allows a single project.
	resp = env.post("/v1/projects", map[string]any{"name": "second"}, owner)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("quota status %d", resp.StatusCode)
	}
	denial := decode[map[string]any](t, resp)
	if denial["reason"] != string(authz.ReasonTierInsufficient) {
		t.Fatalf("unexpected denial %v", denial)
	}
	if denial["upgrade_hint"] != string(entitlement.TierPro) {
		t.Fatalf("missing upgrade hint: %v", denial)
	}

	resp = env.get("/v1/projects/"+p.ID, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get project status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get("/v1/projects/"+p.ID, other)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign get status %d", resp.StatusCode)
	}
	denial = decode[map[string]any](t, resp)
	if denial["reason"] != string(authz.ReasonNotOwner) {
		t.Fatalf("unexpected denial %v", denial)
	}

	resp = env.post("/v1/projects/"+p.ID+"/incidents", map[string]string{"title": "api down", "description": "5xx spike"}, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create incident status %d", resp.StatusCode)
	}
	in := decode[project.Incident](t, resp)

	resp = env.post("/v1/incidents/"+in.ID+"/resolve", nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d", resp.StatusCode)
	}
	resolved := decode[project.Incident](t, resp)
	if !resolved.Resolved || resolved.ResolvedAt == nil {
		t.Fatalf("incident not resolved: %+v", resolved)
	}

	resp = env.get("/v1/projects/"+p.ID+"/incidents", owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list incidents status %d", resp.StatusCode)
	}
	list := decode[struct {
		Items []project.Incident `json:"items"`
	}](t, resp)
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(list.Items))
	}
}

func TestGroupSharingFlow(t *testing.T) {
	env := newTestAPI(t, false)
	env.signup("alice@example.com", "hunter22")
	bob := env.signup("bob@example.com", "hunter22")
	env.signup("eve@example.com", "hunter22")
	alice := authHeaders(env.token("alice@example.com", "hunter22"))
	bobAuth := authHeaders(env.token("bob@example.com", "hunter22"))
	eveAuth := authHeaders(env.token("eve@example.com", "hunter22"))

	resp := env.post("/v1/groups", map[string]string{"name": "platform", "description": "on-call"}, alice)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group status %d", resp.StatusCode)
	}
	g := decode[group.Group](t, resp)

	// Non-members cannot read the group.
	resp = env.get("/v1/groups/"+g.ID, bobAuth)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member group read status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post("/v1/groups/"+g.ID+"/members", map[string]string{"email": "bob@example.com"}, alice)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add member status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post("/v1/projects", map[string]any{"name": "team page", "group_id": g.ID}, alice)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group project status %d", resp.StatusCode)
	}
	p := decode[project.Project](t, resp)
	if p.GroupID != g.ID {
		t.Fatalf("group not recorded on project: %+v", p)
	}

	// The member works with the shared project; outsiders are denied.
	resp = env.get("/v1/projects/"+p.ID, bobAuth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member project read status %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.post("/v1/projects/"+p.ID+"/incidents", map[string]string{"title": "db outage"}, bobAuth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("member incident status %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.get("/v1/projects/"+p.ID, eveAuth)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider project read status %d", resp.StatusCode)
	}
	denial := decode[map[string]any](t, resp)
	if denial["reason"] != string(authz.ReasonNotOwner) {
		t.Fatalf("unexpected denial %v", denial)
	}

	// Plain members cannot manage membership.
	resp = env.post("/v1/groups/"+g.ID+"/members", map[string]string{"email": "eve@example.com"}, bobAuth)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member add-member status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post("/v1/groups/"+g.ID+"/members", map[string]string{"email": "bob@example.com"}, alice)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate member status %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.post("/v1/groups/"+g.ID+"/members", map[string]string{"email": "ghost@example.com"}, alice)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown email status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Removal cuts off the shared access immediately.
	resp = env.post("/v1/groups/"+g.ID+"/members/"+bob.ID+"/remove", nil, alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove member status %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.get("/v1/projects/"+p.ID, bobAuth)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("removed member project read status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The owner's membership is not removable.
	resp = env.post("/v1/groups/"+g.ID+"/members/"+g.OwnerID+"/remove", nil, alice)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("remove owner status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPublicFeed(t *testing.T) {
	env := newTestAPI(t, false)
	env.signup("owner@example.com", "hunter22")
	owner := authHeaders(env.token("owner@example.com", "hunter22"))

	resp := env.post("/v1/projects", map[string]any{"name": "public page", "public": true}, owner)
	p := decode[project.Project](t, resp)
	env.post("/v1/projects/"+p.ID+"/incidents", map[string]string{"title": "outage"}, owner).Body.Close()

	// No authentication required.
	resp = env.get("/public/"+p.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public feed status %d", resp.StatusCode)
	}
	feed := decode[struct {
		Project   project.Project    `json:"project"`
		Incidents []project.Incident `json:"incidents"`
	}](t, resp)
	if feed.Project.ID != p.ID || len(feed.Incidents) != 1 {
		t.Fatalf("unexpected feed %+v", feed)
	}

	resp = env.get("/public/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown project status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWebhookFlow(t *testing.T) {
	env := newTestAPI(t, false)
	u := env.signup("payer@example.com", "hunter22")
	token := env.token("payer@example.com", "hunter22")

	payload, _ := json.Marshal(billing.Event{
		EventType:              "subscription.created",
		ExternalSubscriptionID: "sub-1",
		UserReference:          u.ID,
		Sequence:               1,
	})

	// Missing or wrong signature is rejected before any decoding.
	resp := env.do(http.MethodPost, "/v1/billing/webhook", payload, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook status %d", resp.StatusCode)
	}
	resp.Body.Close()

	sign := func(body []byte) map[string]string {
		return map[string]string{signatureHeader: billing.Sign([]byte(webhookSecret), body)}
	}

	resp = env.do(http.MethodPost, "/v1/billing/webhook", payload, sign(payload))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signed webhook status %d", resp.StatusCode)
	}
	out := decode[map[string]any](t, resp)
	if out["outcome"] != "applied" {
		t.Fatalf("unexpected outcome %v", out)
	}

	resp = env.get("/v1/account/entitlement", authHeaders(token))
	ent := decode[entitlement.Entitlement](t, resp)
	if ent.Tier != entitlement.TierPro || ent.Status != entitlement.StatusActive {
		t.Fatalf("entitlement not upgraded: %+v", ent)
	}

	// Duplicate delivery acknowledges as stale.
	resp = env.do(http.MethodPost, "/v1/billing/webhook", payload, sign(payload))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("duplicate webhook status %d", resp.StatusCode)
	}
	out = decode[map[string]any](t, resp)
	if out["outcome"] != "stale" {
		t.Fatalf("unexpected duplicate outcome %v", out)
	}

	ghost, _ := json.Marshal(billing.Event{
		EventType: "subscription.created", UserReference: "ghost", Sequence: 2,
	})
	resp = env.do(http.MethodPost, "/v1/billing/webhook", ghost, sign(ghost))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user webhook status %d", resp.StatusCode)
	}
	resp.Body.Close()

	malformed, _ := json.Marshal(billing.Event{EventType: "subscription.created", UserReference: u.ID})
	resp = env.do(http.MethodPost, "/v1/billing/webhook", malformed, sign(malformed))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed webhook status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestAPI(t, true)
	env.signup("root@example.com", "hunter22")
	target := env.signup("worker@example.com", "hunter22")

	if err := env.identity.BootstrapAdmin(context.Background(), "root@example.com"); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	admin := authHeaders(env.token("root@example.com", "hunter22"))
	worker := authHeaders(env.token("worker@example.com", "hunter22"))

	resp := env.get("/v1/admin/users", worker)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin list status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get("/v1/admin/users", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list status %d", resp.StatusCode)
	}
	list := decode[struct {
		Items []identity.User `json:"items"`
	}](t, resp)
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 users, got %d", len(list.Items))
	}

	resp = env.post("/v1/admin/users/"+target.ID+"/promote", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote status %d", resp.StatusCode)
	}
	promoted := decode[identity.User](t, resp)
	if !promoted.IsAdmin {
		t.Fatalf("target not promoted: %+v", promoted)
	}

	resp = env.post("/v1/admin/users/"+target.ID+"/deactivate", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Deactivated accounts cannot log in.
	resp = env.post("/v1/auth/token", map[string]string{"email": "worker@example.com", "password": "hunter22"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deactivated login status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminDisabled(t *testing.T) {
	env := newTestAPI(t, false)
	env.signup("root@example.com", "hunter22")
	if err := env.identity.BootstrapAdmin(context.Background(), "root@example.com"); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	admin := authHeaders(env.token("root@example.com", "hunter22"))

	resp := env.get("/v1/admin/users", admin)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("disabled admin status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestBillingDisabled(t *testing.T) {
	t.Setenv("STATUSWISE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	users := identity.NewInMemory()
	ents := entitlement.NewInMemory()
	idSvc, _ := identity.NewService(users, ents)
	engine, _ := authz.NewEngine(ents, authz.DefaultGateTable())
	projects, _ := project.NewService(project.NewInMemory(), engine, ents, project.DefaultLimitTable(), nil, nil)

	api := New(ReadyProbe{}, "test", Services{
		Identity:     idSvc,
		Engine:       engine,
		Entitlements: ents,
		Projects:     projects,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/billing/webhook", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("disabled billing status %d", resp.StatusCode)
	}
}
