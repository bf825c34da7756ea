package jwk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keksclan/goOIDCly/internal/failure"
	"github.com/keksclan/goOIDCly/internal/testutil"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(FetcherConfig{
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}

func TestDiscoveryURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://idp.example/tenant", "https://idp.example/tenant/.well-known/openid-configuration"},
		{"https://idp.example/tenant/", "https://idp.example/tenant/.well-known/openid-configuration"},
		{"https://idp.example", "https://idp.example/.well-known/openid-configuration"},
	}
	for _, tt := range tests {
		got, err := DiscoveryURL(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("DiscoveryURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := DiscoveryURL("idp.example/tenant"); err == nil {
		t.Error("expected error for relative url")
	}
}

func TestFetchMetadataAndKeys(t *testing.T) {
	idp := testutil.NewIdP(t)
	f := testFetcher()
	ctx := context.Background()

	md, err := f.Fetch(ctx, idp.IssuerURL())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if md.JWKSURI != idp.JWKSURL() || md.Issuer != idp.Issuer() {
		t.Fatalf("unexpected metadata: %+v", md)
	}

	ks, err := f.FetchKeys(ctx, md.JWKSURI)
	if err != nil {
		t.Fatalf("FetchKeys: %v", err)
	}
	if k, ok := ks.Lookup("k1"); !ok || k.Algorithm != "RS256" {
		t.Fatalf("expected k1/RS256, got %+v", k)
	}
}

func TestFetchFailureCauses(t *testing.T) {
	ctx := context.Background()

	t.Run("missing jwks_uri", func(t *testing.T) {
		idp := testutil.NewIdP(t)
		idp.OmitJWKSURI.Store(true)
		_, err := testFetcher().Fetch(ctx, idp.IssuerURL())
		if failure.CauseOf(err) != failure.CauseMissingField {
			t.Fatalf("want missing_field, got %v", err)
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		idp := testutil.NewIdP(t)
		idp.MetadataStatus.Store(http.StatusNotFound)
		_, err := testFetcher().Fetch(ctx, idp.IssuerURL())
		var fe *failure.Error
		if !errors.As(err, &fe) || fe.Cause != failure.CauseHTTPStatus || fe.Status != http.StatusNotFound {
			t.Fatalf("want http_status 404, got %v", err)
		}
		if got := idp.MetadataHits.Load(); got != 1 {
			t.Fatalf("metadata hits = %d, want 1", got)
		}
	})

	t.Run("server error is retried up to the limit", func(t *testing.T) {
		idp := testutil.NewIdP(t)
		idp.JWKSStatus.Store(http.StatusServiceUnavailable)
		_, err := testFetcher().FetchKeys(ctx, idp.JWKSURL())
		if failure.CauseOf(err) != failure.CauseHTTPStatus {
			t.Fatalf("want http_status, got %v", err)
		}
		if got := idp.JWKSHits.Load(); got != 3 {
			t.Fatalf("jwks hits = %d, want 3", got)
		}
	})

	t.Run("unparseable jwks", func(t *testing.T) {
		idp := testutil.NewIdP(t)
		idp.PublishRaw([]byte(`{"keys": "not-an-array"}`))
		_, err := testFetcher().FetchKeys(ctx, idp.JWKSURL())
		if failure.CauseOf(err) != failure.CauseParse {
			t.Fatalf("want parse, got %v", err)
		}
	})

	t.Run("empty jwks", func(t *testing.T) {
		idp := testutil.NewIdP(t)
		idp.Publish()
		_, err := testFetcher().FetchKeys(ctx, idp.JWKSURL())
		if failure.CauseOf(err) != failure.CauseParse || !errors.Is(err, ErrNoUsableKeys) {
			t.Fatalf("want parse/no usable keys, got %v", err)
		}
	})

	t.Run("unparseable metadata", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()
		_, err := testFetcher().Fetch(ctx, srv.URL)
		if failure.CauseOf(err) != failure.CauseParse {
			t.Fatalf("want parse, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := testFetcher().Fetch(ctx, url)
		if failure.CauseOf(err) != failure.CauseNetwork {
			t.Fatalf("want network, got %v", err)
		}
	})

	t.Run("relative issuer url", func(t *testing.T) {
		_, err := testFetcher().Fetch(ctx, "idp.example/tenant")
		if failure.CauseOf(err) != failure.CauseParse {
			t.Fatalf("want parse, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		idp := testutil.NewIdP(t)
		idp.JWKSDelay.Store(int64(500 * time.Millisecond))
		f := NewHTTPFetcher(FetcherConfig{Timeout: 20 * time.Millisecond, MaxAttempts: 1})
		_, err := f.FetchKeys(ctx, idp.JWKSURL())
		if failure.CauseOf(err) != failure.CauseNetwork {
			t.Fatalf("want network, got %v", err)
		}
	})
}
