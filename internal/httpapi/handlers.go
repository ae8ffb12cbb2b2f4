package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"statuswise.org/internal/authz"
	"statuswise.org/internal/billing"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/group"
	"statuswise.org/internal/identity"
	"statuswise.org/internal/obs"
	"statuswise.org/internal/project"
	"statuswise.org/internal/stream"
)

// ReadyProbe checks readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services collects the domain dependencies the HTTP layer exposes.
// Reconciler may be nil (billing toggle off); Stream may be nil.
type Services struct {
	Identity     *identity.Service
	Engine       *authz.Engine
	Entitlements entitlement.Store
	Projects     *project.Service
	Groups       *group.Service
	Reconciler   *billing.Reconciler
	Stream       *stream.Stream
	AdminEnabled bool
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	identity     *identity.Service
	engine       *authz.Engine
	entitlements entitlement.Store
	projects     *project.Service
	groups       *group.Service
	reconciler   *billing.Reconciler
	stream       *stream.Stream
	adminEnabled bool

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, svcs Services) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		identity:     svcs.Identity,
		engine:       svcs.Engine,
		entitlements: svcs.Entitlements,
		projects:     svcs.Projects,
		groups:       svcs.Groups,
		reconciler:   svcs.Reconciler,
		stream:       svcs.Stream,
		adminEnabled: svcs.AdminEnabled,
		rateBurst:    50,
		ratePerSec:   25,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// identity
	a.mux.HandleFunc("/v1/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/account/entitlement", a.handleAccountEntitlement)

	// projects and incidents
	a.mux.HandleFunc("/v1/projects", a.handleProjectsCollection)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectResource)
	a.mux.HandleFunc("/v1/incidents/", a.handleIncidentResource)

	// groups and memberships
	a.mux.HandleFunc("/v1/groups", a.handleGroupsCollection)
	a.mux.HandleFunc("/v1/groups/", a.handleGroupResource)

	// billing webhook ingress
	a.mux.HandleFunc("/v1/billing/webhook", a.handleBillingWebhook)

	// admin
	a.mux.HandleFunc("/v1/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/v1/admin/users/", a.handleAdminUserAction)

	// public status feed
	a.mux.HandleFunc("/public/", a.handlePublicProject)
	a.mux.HandleFunc("/v1/stream/incidents", a.StreamIncidents)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "statuswise-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "statuswise-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeDenied surfaces a deny decision as 403 with its reason code and
// optional upgrade hint.
func writeDenied(w http.ResponseWriter, r *http.Request, dec authz.Decision) {
	payload := map[string]any{
		"error":  "forbidden",
		"reason": string(dec.Reason),
	}
	if dec.UpgradeHint != "" {
		payload["upgrade_hint"] = string(dec.UpgradeHint)
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusForbidden, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps service errors onto HTTP statuses. Denials
// carry their decision through; everything unexpected is a 500.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if denied, ok := authz.AsDenied(err); ok {
		writeDenied(w, r, denied.Decision)
		return
	}
	switch {
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, group.ErrInvalidInput),
		errors.Is(err, entitlement.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, identity.ErrConflict), errors.Is(err, group.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, group.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
