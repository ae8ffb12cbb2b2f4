package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/projects":                       "/v1/projects",
		"/v1/projects/01H9ZX":                "/v1/projects/:id",
		"/v1/projects/01H9ZX/incidents":      "/v1/projects/:id/incidents",
		"/v1/projects/01H9ZX/extra/deep":     "/v1/projects/01H9ZX/extra/deep",
		"/v1/incidents/abc/resolve":          "/v1/incidents/:id/resolve",
		"/v1/groups":                         "/v1/groups",
		"/v1/groups/01H9ZX":                  "/v1/groups/:id",
		"/v1/groups/01H9ZX/members":          "/v1/groups/:id/members",
		"/v1/groups/01H9ZX/members/u1/remove": "/v1/groups/:id/members/:user_id/remove",
		"/public/01H9ZX":                     "/public/:id",
		"/public/01H9ZX/extra":               "/public/01H9ZX/extra",
		"/v1/admin/users":                    "/v1/admin/users",
		"/v1/admin/users/u1/promote":         "/v1/admin/users/:id/promote",
		"/v1/admin/users/u1/deactivate":      "/v1/admin/users/:id/deactivate",
		"/v1/account/entitlement?refresh=1":  "/v1/account/entitlement",
		"/v1/billing/webhook":                "/v1/billing/webhook",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
