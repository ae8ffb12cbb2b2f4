package httpapi

import (
	"net/http"
	"strings"
	"time"

	"statuswise.org/internal/group"
)

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (a *API) handleGroupsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createGroup(w, r)
	case http.MethodGet:
		a.listGroups(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleGroupResource routes /v1/groups/{id}, /{id}/members and
// /{id}/members/{userID}/remove.
func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/groups/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getGroup(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "members":
		switch r.Method {
		case http.MethodPost:
			a.addGroupMember(w, r, parts[0])
		case http.MethodGet:
			a.listGroupMembers(w, r, parts[0])
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 4 && parts[1] == "members" && parts[3] == "remove":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.removeGroupMember(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	g, err := a.groups.CreateGroup(r.Context(), u, req.Name, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/groups/"+g.ID)
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) listGroups(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	groups, err := a.groups.ListGroups(r.Context(), u)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": groups,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) getGroup(w http.ResponseWriter, r *http.Request, id string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	g, members, err := a.groups.GetGroup(r.Context(), u, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group":   g,
		"members": members,
	})
}

func (a *API) listGroupMembers(w http.ResponseWriter, r *http.Request, id string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	_, members, err := a.groups.GetGroup(r.Context(), u, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": members,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) addGroupMember(w http.ResponseWriter, r *http.Request, id string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := group.ParseRole(req.Role)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	m, err := a.groups.AddMember(r.Context(), u, id, req.Email, role)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) removeGroupMember(w http.ResponseWriter, r *http.Request, id, userID string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if err := a.groups.RemoveMember(r.Context(), u, id, userID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": id,
		"user_id":  userID,
		"removed":  true,
	})
}
