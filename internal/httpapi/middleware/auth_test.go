package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var testKeys = Keys{
	Public: []string{"pub_key"},
	Admin:  []string{"adm_key"},
}

func roleEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Role", string(RoleFrom(r.Context())))
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"admin key", "X-API-Key", "adm_key", http.StatusOK},
		{"admin bearer", "Authorization", "Bearer adm_key", http.StatusOK},
		{"public key", "X-API-Key", "pub_key", http.StatusForbidden},
		{"unknown key", "X-API-Key", "nope", http.StatusForbidden},
		{"missing key", "", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		if c.header != "" {
			req.Header.Set(c.header, c.value)
		}
		rec := httptest.NewRecorder()
		RequireAdmin(testKeys)(roleEcho()).ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s: want %d got %d", c.name, c.want, rec.Code)
		}
	}
}

func TestRequireAny_SetsRole(t *testing.T) {
	for key, want := range map[string]Role{"pub_key": RolePublic, "adm_key": RoleAdmin} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		RequireAny(testKeys)(roleEcho()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Header().Get("X-Role") != string(want) {
			t.Fatalf("%s: got %d role=%q", key, rec.Code, rec.Header().Get("X-Role"))
		}
	}

	rec := httptest.NewRecorder()
	RequireAny(testKeys)(roleEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: want 401 got %d", rec.Code)
	}
}

func TestRequire_NoKeysConfiguredAllowsAll(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAny(Keys{})(roleEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("RequireAny: want 200 got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	RequireAdmin(Keys{})(roleEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("RequireAdmin: want 200 got %d", rec.Code)
	}
}
