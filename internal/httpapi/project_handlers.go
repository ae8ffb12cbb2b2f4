package httpapi

import (
	"net/http"
	"strings"
	"time"
)

type createProjectRequest struct {
	Name    string `json:"name"`
	Public  bool   `json:"public"`
	GroupID string `json:"group_id"`
}

type createIncidentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (a *API) handleProjectsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createProject(w, r)
	case http.MethodGet:
		a.listProjects(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
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
		a.getProject(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "incidents":
		switch r.Method {
		case http.MethodPost:
			a.createIncident(w, r, parts[0])
		case http.MethodGet:
			a.listIncidents(w, r, parts[0])
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleIncidentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/incidents/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "resolve" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.resolveIncident(w, r, parts[0])
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.projects.CreateProject(r.Context(), u, req.Name, req.Public, req.GroupID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/projects/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	projects, err := a.projects.ListProjects(r.Context(), u)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": projects,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request, id string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	p, err := a.projects.GetProject(r.Context(), u, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) createIncident(w http.ResponseWriter, r *http.Request, projectID string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req createIncidentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in, err := a.projects.CreateIncident(r.Context(), u, projectID, req.Title, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (a *API) listIncidents(w http.ResponseWriter, r *http.Request, projectID string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	incidents, err := a.projects.ListIncidents(r.Context(), u, projectID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": incidents,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) resolveIncident(w http.ResponseWriter, r *http.Request, incidentID string) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	in, err := a.projects.ResolveIncident(r.Context(), u, incidentID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// handlePublicProject serves the unauthenticated status page feed.
func (a *API) handlePublicProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/public/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	p, incidents, err := a.projects.PublicIncidents(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project":   p,
		"incidents": incidents,
	})
}
