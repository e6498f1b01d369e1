package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	keys := Keys{
		Public: []string{"pub_key"},
		Admin:  []string{"adm_key"},
	}

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Admin key -> 200
	reqAdm := httptest.NewRequest(http.MethodGet, "/admin", nil)
	reqAdm.Header.Set("X-API-Key", "adm_key")
	recAdm := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(recAdm, reqAdm)
	if recAdm.Code != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", recAdm.Code)
	}

	// Public key -> 403
	reqPub := httptest.NewRequest(http.MethodGet, "/admin", nil)
	reqPub.Header.Set("X-API-Key", "pub_key")
	recPub := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(recPub, reqPub)
	if recPub.Code != http.StatusForbidden {
		t.Fatalf("public key should be forbidden; got %d", recPub.Code)
	}

	// Missing key -> 403
	reqNone := httptest.NewRequest(http.MethodGet, "/admin", nil)
	recNone := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(recNone, reqNone)
	if recNone.Code != http.StatusForbidden {
		t.Fatalf("missing key should be 403; got %d", recNone.Code)
	}
}

func TestRequireAny_AcceptsBothKeyKinds(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"public api key", "X-API-Key", "pub_key", http.StatusOK},
		{"admin bearer", "Authorization", "Bearer adm_key", http.StatusOK},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"no key", "", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		if c.header != "" {
			req.Header.Set(c.header, c.value)
		}
		rec := httptest.NewRecorder()
		RequireAny(keys)(ok).ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s: got %d want %d", c.name, rec.Code, c.want)
		}
	}
}

func TestAuth_NoKeysConfiguredAllowsAll(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	for _, mw := range []func(http.Handler) http.Handler{RequireAny(Keys{}), RequireAdmin(Keys{})} {
		rec := httptest.NewRecorder()
		mw(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d want 200", rec.Code)
		}
	}
}

func TestReadAuth_QueryKeyForWebsocket(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/ws?key=pub_key", nil)
	if got := readAuth(req); got != "pub_key" {
		t.Fatalf("readAuth=%q", got)
	}
	req.Header.Set("X-API-Key", "hdr")
	if got := readAuth(req); got != "hdr" {
		t.Fatalf("header should win over query, got %q", got)
	}
}
