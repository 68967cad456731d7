package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
)

func TestRoute(t *testing.T) {
	op := &huma.Operation{Path: "/v1/records/{id}"}
	if got := Route(op, "/v1/records/12"); got != "/v1/records/{id}" {
		t.Fatalf("op route=%s", got)
	}
	cases := map[string]string{
		"/v1/records/12":             "/v1/records/{id}",
		"/v1/records/12/approve":     "/v1/records/{id}/approve",
		"/v1/records/private/AB12CD": "/v1/records/private/{private_id}",
		"/v1/lists/default":          "/v1/lists/default",
	}
	for raw, want := range cases {
		if got := Route(nil, raw); got != want {
			t.Errorf("Route(%q)=%q want %q", raw, got, want)
		}
	}
}

func TestCaller(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if Caller(r) != "anonymous" {
		t.Fatalf("anonymous expected")
	}
	r.Header.Set("Authorization", "Bearer x")
	if Caller(r) != "bearer" {
		t.Fatalf("bearer expected")
	}
}
