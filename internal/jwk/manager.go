package jwk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/keksclan/goOIDCly/internal/cache"
	"github.com/keksclan/goOIDCly/internal/failure"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL            = 15 * time.Minute
	DefaultGracePeriod    = time.Hour
	DefaultMetadataTTL    = 24 * time.Hour
	DefaultRefreshTimeout = 15 * time.Second
	// DefaultForcedRefreshInterval is the minimum spacing of refreshes
	// triggered by unknown key IDs.
	DefaultForcedRefreshInterval = 10 * time.Second
)

// Entry is one successfully fetched key set. Entries are replaced wholesale
// and never modified after being stored.
type Entry struct {
	Keys      *KeySet
	FetchedAt time.Time
	// ExpiresAt is when the entry stops being fresh and a refresh is due.
	ExpiresAt time.Time
	// HardExpiresAt is the end of the grace window during which the entry
	// may still be served if refreshing fails.
	HardExpiresAt time.Time
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// IssuerURL is the base URL used for discovery.
	IssuerURL string
	// JWKSURL skips discovery when set.
	JWKSURL string
	// TTL is the freshness window of a fetched key set.
	TTL time.Duration
	// GracePeriod extends the usable life of the last key set when a
	// refresh fails. Negative disables stale fallback.
	GracePeriod time.Duration
	// MetadataTTL bounds how long a discovery document is reused.
	MetadataTTL time.Duration
	// RefreshTimeout bounds one shared refresh, independent of any caller.
	RefreshTimeout time.Duration
	// ForcedRefreshInterval suppresses a forced refresh sooner than this
	// after the previous forced refresh. The first one always runs. Zero
	// means no limit.
	ForcedRefreshInterval time.Duration

	Clock  func() time.Time
	Logger zerolog.Logger
	// OnRefresh is called after every network refresh attempt.
	OnRefresh func(forced bool, err error)
}

// Manager is the process-wide signing key cache. Concurrent misses share a
// single in-flight refresh; readers always see a complete entry.
//
// Concurrency: safe for concurrent use.
type Manager struct {
	cfg     ManagerConfig
	src     Source
	meta    cache.Cache
	entry   atomic.Pointer[Entry]
	sfGroup singleflight.Group
	// lastForced is the start of the last forced fetch in unix nanoseconds.
	lastForced atomic.Int64

	// fetchFn performs the network refresh. Tests replace it to inject
	// alternate results.
	fetchFn func(ctx context.Context) (any, error)
}

// NewManager creates a Manager. meta caches discovery documents; it may be
// any Cache, including one shared with other components.
func NewManager(src Source, meta cache.Cache, cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = DefaultMetadataTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	m := &Manager{cfg: cfg, src: src, meta: meta}
	m.fetchFn = func(ctx context.Context) (any, error) {
		return m.fetchEntry(ctx)
	}
	return m
}

// Entry returns the current cache entry, or nil before the first fetch.
func (m *Manager) Entry() *Entry {
	return m.entry.Load()
}

// Keys returns the cached key set if fresh, refreshing it otherwise. When the
// refresh fails the previous set is returned while inside its grace window.
func (m *Manager) Keys(ctx context.Context) (*KeySet, error) {
	cur := m.entry.Load()
	if cur != nil && m.cfg.Clock().Before(cur.ExpiresAt) {
		return cur.Keys, nil
	}

	e, err := m.refresh(ctx, false, nil)
	if err == nil {
		return e.Keys, nil
	}
	if stale := m.usableStale(); stale != nil {
		m.cfg.Logger.Warn().Err(err).
			Time("fetched_at", stale.FetchedAt).
			Msg("jwks refresh failed, serving cached key set")
		return stale.Keys, nil
	}
	return nil, err
}

// ForceRefresh refreshes the key set ignoring its TTL. seen is the set the
// caller failed to find a key in; if the cache already moved past it, the
// current set is returned without another fetch.
func (m *Manager) ForceRefresh(ctx context.Context, seen *KeySet) (*KeySet, error) {
	if cur := m.entry.Load(); cur != nil && seen != nil && cur.Keys != seen {
		return cur.Keys, nil
	}

	e, err := m.refresh(ctx, true, seen)
	if err == nil {
		return e.Keys, nil
	}
	if stale := m.usableStale(); stale != nil {
		m.cfg.Logger.Warn().Err(err).Msg("forced jwks refresh failed, keeping cached key set")
		return stale.Keys, nil
	}
	return nil, err
}

// skipForced reports whether a forced refresh would be redundant: the cache
// already replaced the set the caller failed against, or the previous forced
// refresh is too recent.
func (m *Manager) skipForced(cur *Entry, seen *KeySet) bool {
	if cur == nil {
		return false
	}
	if seen != nil && cur.Keys != seen {
		return true
	}
	last := m.lastForced.Load()
	if m.cfg.ForcedRefreshInterval > 0 && last != 0 &&
		m.cfg.Clock().Sub(time.Unix(0, last)) < m.cfg.ForcedRefreshInterval {
		m.cfg.Logger.Debug().Msg("forced jwks refresh suppressed by rate limit")
		return true
	}
	return false
}

func (m *Manager) usableStale() *Entry {
	cur := m.entry.Load()
	if cur == nil || m.cfg.GracePeriod < 0 {
		return nil
	}
	if m.cfg.Clock().Before(cur.HardExpiresAt) {
		return cur
	}
	return nil
}

// refresh joins or starts the shared refresh. The fetch runs on a context
// detached from the caller so one caller's cancellation cannot fail it for
// everyone else; the caller itself stops waiting when ctx is done.
//
// Flights never overlap, so the checks inside the closure see every entry
// stored by earlier flights.
func (m *Manager) refresh(ctx context.Context, forced bool, seen *KeySet) (*Entry, error) {
	ch := m.sfGroup.DoChan("refresh", func() (any, error) {
		cur := m.entry.Load()
		if forced {
			if m.skipForced(cur, seen) {
				return cur, nil
			}
			m.lastForced.Store(m.cfg.Clock().UnixNano())
		} else if cur != nil && m.cfg.Clock().Before(cur.ExpiresAt) {
			// Another flight may have completed between our check and now.
			return cur, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
		defer cancel()

		res, err := m.fetchFn(fctx)
		if m.cfg.OnRefresh != nil {
			m.cfg.OnRefresh(forced, err)
		}
		return res, err
	})

	select {
	case <-ctx.Done():
		return nil, failure.Discovery(failure.CauseNetwork, "waiting for jwks refresh", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		e, ok := r.Val.(*Entry)
		if !ok || e == nil {
			return nil, fmt.Errorf("unexpected singleflight result type %T for issuer=%s", r.Val, m.cfg.IssuerURL)
		}
		return e, nil
	}
}

func (m *Manager) fetchEntry(ctx context.Context) (*Entry, error) {
	jwksURI, discovered, err := m.resolveJWKSURI(ctx)
	if err != nil {
		m.cfg.Logger.Error().Err(err).Str("issuer_url", m.cfg.IssuerURL).Msg("oidc discovery failed")
		return nil, err
	}

	keys, err := m.src.FetchKeys(ctx, jwksURI)
	if err != nil {
		var fe *failure.Error
		if discovered && errors.As(err, &fe) &&
			(fe.Status == http.StatusNotFound || fe.Status == http.StatusGone) {
			// The provider moved its key endpoint; rediscover next time.
			m.meta.Del(m.metadataKey())
		}
		m.cfg.Logger.Error().Err(err).Str("jwks_uri", jwksURI).Msg("jwks fetch failed")
		return nil, err
	}

	now := m.cfg.Clock()
	e := &Entry{
		Keys:      keys,
		FetchedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	e.HardExpiresAt = e.ExpiresAt
	if m.cfg.GracePeriod > 0 {
		e.HardExpiresAt = e.ExpiresAt.Add(m.cfg.GracePeriod)
	}
	m.entry.Store(e)

	m.cfg.Logger.Info().
		Str("jwks_uri", jwksURI).
		Strs("kids", keys.KeyIDs()).
		Time("expires_at", e.ExpiresAt).
		Msg("jwks refreshed")
	return e, nil
}

func (m *Manager) metadataKey() string {
	return "oidc:metadata:" + m.cfg.IssuerURL
}

// resolveJWKSURI returns the key set location and whether it came from
// discovery.
func (m *Manager) resolveJWKSURI(ctx context.Context) (string, bool, error) {
	if m.cfg.JWKSURL != "" {
		return m.cfg.JWKSURL, false, nil
	}

	key := m.metadataKey()
	if v, ok := m.meta.Get(key); ok {
		if md, ok := v.(*Metadata); ok && md != nil && md.JWKSURI != "" {
			return md.JWKSURI, true, nil
		}
	}

	md, err := m.src.Fetch(ctx, m.cfg.IssuerURL)
	if err != nil {
		return "", true, err
	}
	m.meta.Set(key, md, m.cfg.MetadataTTL)
	// ensure visibility for the next refresh (ristretto is async)
	if w, ok := m.meta.(interface{ Wait() }); ok {
		w.Wait()
	}
	m.cfg.Logger.Debug().Str("issuer", md.Issuer).Str("jwks_uri", md.JWKSURI).Msg("oidc metadata discovered")
	return md.JWKSURI, true, nil
}
