package httpapi

import (
	"net/http"
	"strings"
	"time"

	"statuswise.org/internal/audit"
	"statuswise.org/internal/authz"
	"statuswise.org/internal/identity"
)

// requireAdminAction runs the ADMIN_ACTION check and writes the denial
// when the caller does not clear it.
func (a *API) requireAdminAction(w http.ResponseWriter, r *http.Request, actor identity.User) bool {
	dec, err := a.engine.Authorize(r.Context(), authz.Request{
		Actor:  actor,
		Action: authz.ActionAdmin,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return false
	}
	if !dec.Allow {
		writeDenied(w, r, dec)
		return false
	}
	return true
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if !a.adminEnabled {
		writeError(w, r, http.StatusNotFound, "admin is disabled")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if !a.requireAdminAction(w, r, u) {
		return
	}

	users, err := a.identity.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": users,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) handleAdminUserAction(w http.ResponseWriter, r *http.Request) {
	if !a.adminEnabled {
		writeError(w, r, http.StatusNotFound, "admin is disabled")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if !a.requireAdminAction(w, r, u) {
		return
	}

	targetID := parts[0]
	switch parts[1] {
	case "promote":
		target, err := a.identity.PromoteToAdmin(r.Context(), targetID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.user.promoted", map[string]any{
			"actor_id":  u.ID,
			"target_id": target.ID,
		})
		writeJSON(w, http.StatusOK, target)
	case "deactivate":
		target, err := a.identity.Deactivate(r.Context(), targetID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.user.deactivated", map[string]any{
			"actor_id":  u.ID,
			"target_id": target.ID,
		})
		writeJSON(w, http.StatusOK, target)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
