package oidclyhttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keksclan/goOIDCly/internal/testutil"
	"github.com/keksclan/goOIDCly/oidcly"
)

func newEngine(t *testing.T, idp *testutil.IdP) *oidcly.Engine {
	t.Helper()
	e, err := oidcly.New(oidcly.Config{
		Issuer:           idp.Issuer(),
		Audience:         testutil.Audience,
		IssuerURL:        idp.IssuerURL(),
		MaxFetchAttempts: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := ResultFromContext(r.Context())
		if res == nil {
			http.Error(w, "no result", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, res.Identity)
	})
}

func do(t *testing.T, h http.Handler, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAccepts(t *testing.T) {
	idp := testutil.NewIdP(t)
	h := Middleware(newEngine(t, idp))(whoami())

	rec := do(t, h, "Bearer "+idp.Sign(t, "k1", idp.Claims(time.Now(), time.Hour)))
	if rec.Code != http.StatusOK || rec.Body.String() != "user@example.com" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestMiddlewareRejectsUniformly(t *testing.T) {
	idp := testutil.NewIdP(t)
	h := Middleware(newEngine(t, idp))(whoami())
	now := time.Now()

	expired := idp.Claims(now, time.Hour)
	expired["exp"] = now.Add(-time.Minute).Unix()
	wrongAud := idp.Claims(now, time.Hour)
	wrongAud["aud"] = "api://other"

	for name, header := range map[string]string{
		"missing":   "",
		"basic":     "Basic dXNlcjpwYXNz",
		"malformed": "Bearer not-a-jwt",
		"expired":   "Bearer " + idp.Sign(t, "k1", expired),
		"audience":  "Bearer " + idp.Sign(t, "k1", wrongAud),
	} {
		rec := do(t, h, header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d", name, rec.Code)
		}
		if got := rec.Body.String(); got != `{"error":"unauthorized"}` {
			t.Errorf("%s: body = %q", name, got)
		}
		if rec.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("%s: missing WWW-Authenticate", name)
		}
	}
}

func TestMiddlewareRequiredMetadataAndIdentity(t *testing.T) {
	idp := testutil.NewIdP(t)
	e := newEngine(t, idp)
	c := idp.Claims(time.Now(), time.Hour)
	delete(c, "email")
	delete(c, "sub")
	tok := idp.Sign(t, "k1", c)

	h := Middleware(e, WithIdentityRequired())(whoami())
	if rec := do(t, h, "Bearer "+tok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token without identity: status = %d", rec.Code)
	}

	h = Middleware(e, WithRequiredMetadata("X-Tenant"))(whoami())
	if rec := do(t, h, "Bearer "+tok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing X-Tenant: status = %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Tenant", "acme")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with X-Tenant: status = %d", rec.Code)
	}
}

func TestResultFromContextEmpty(t *testing.T) {
	if ResultFromContext(context.Background()) != nil {
		t.Fatal("expected nil")
	}
}
