// Package oidclyconfig loads an oidcly.Config from Go values, JSON, Lua,
// environment variables or config files.
package oidclyconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/keksclan/goOIDCly/oidcly"
	lua "github.com/yuin/gopher-lua"
)

// Loader loads an oidcly.Config from a source.
type Loader interface {
	Load(ctx context.Context) (*oidcly.Config, error)
}

// goLoader returns a static config.
type goLoader struct {
	cfg oidcly.Config
}

// FromGo creates a Loader that returns the provided config directly.
func FromGo(cfg oidcly.Config) Loader {
	return &goLoader{cfg: cfg}
}

func (l *goLoader) Load(_ context.Context) (*oidcly.Config, error) {
	cfg := l.cfg
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// jsonLoader loads config from a JSON file.
type jsonLoader struct {
	path string
}

// FromJSONFile creates a Loader that reads config from a JSON file.
// Durations are given in seconds.
func FromJSONFile(path string) Loader {
	return &jsonLoader{path: path}
}

type jsonConfig struct {
	Issuer    string   `json:"issuer"`
	Audience  string   `json:"audience"`
	IssuerURL string   `json:"issuer_url"`
	JWKS      jsonJWKS `json:"jwks"`

	MetadataCacheTTLSec int      `json:"metadata_cache_ttl_sec"`
	HTTPTimeoutMs       int      `json:"http_timeout_ms"`
	RefreshTimeoutMs    int      `json:"refresh_timeout_ms"`
	MaxFetchAttempts    int      `json:"max_fetch_attempts"`
	ClockSkewSec        float64  `json:"clock_skew_sec"`
	AllowedAlgs         []string `json:"allowed_algs"`

	Identity jsonIdentity `json:"identity"`
}

type jsonJWKS struct {
	URL                      string `json:"url"`
	CacheTTLSec              int    `json:"cache_ttl_sec"`
	GracePeriodSec           int    `json:"grace_period_sec"`
	ForcedRefreshIntervalSec int    `json:"forced_refresh_interval_sec"`
}

type jsonIdentity struct {
	Claims []string `json:"claims"`
	Script string   `json:"script"`
}

func (l *jsonLoader) Load(_ context.Context) (*oidcly.Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read json config: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	cfg := jsonToConfig(jc)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func jsonToConfig(jc jsonConfig) oidcly.Config {
	return oidcly.Config{
		Issuer:                jc.Issuer,
		Audience:              jc.Audience,
		IssuerURL:             jc.IssuerURL,
		JWKSURL:               jc.JWKS.URL,
		JWKSCacheTTL:          time.Duration(jc.JWKS.CacheTTLSec) * time.Second,
		JWKSGracePeriod:       time.Duration(jc.JWKS.GracePeriodSec) * time.Second,
		ForcedRefreshInterval: time.Duration(jc.JWKS.ForcedRefreshIntervalSec) * time.Second,
		MetadataCacheTTL:      time.Duration(jc.MetadataCacheTTLSec) * time.Second,
		HTTPTimeout:           time.Duration(jc.HTTPTimeoutMs) * time.Millisecond,
		RefreshTimeout:        time.Duration(jc.RefreshTimeoutMs) * time.Millisecond,
		MaxFetchAttempts:      jc.MaxFetchAttempts,
		ClockSkew:             time.Duration(jc.ClockSkewSec * float64(time.Second)),
		AllowedAlgs:           jc.AllowedAlgs,
		IdentityClaims:        jc.Identity.Claims,
		IdentityScript:        jc.Identity.Script,
	}
}

// luaLoader loads config from a Lua file.
type luaLoader struct {
	path string
}

// FromLuaFile creates a Loader that reads config from a Lua file. The file
// must return a table with the same layout as the JSON config.
func FromLuaFile(path string) Loader {
	return &luaLoader{path: path}
}

func (l *luaLoader) Load(_ context.Context) (*oidcly.Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read lua config file: %w", err)
	}
	return LoadLuaString(string(data))
}

// LoadLuaString parses a Lua config string and returns an oidcly.Config.
// Exported for testing convenience.
func LoadLuaString(script string) (*oidcly.Config, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	// Only open safe libs for config parsing
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(pair.fn))
		L.Push(lua.LString(pair.name))
		L.Call(1, 0)
	}
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)

	if err := L.DoString(script); err != nil {
		return nil, fmt.Errorf("lua config execution: %w", err)
	}

	ret := L.Get(-1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua config must return a table, got %s", ret.Type().String())
	}

	cfg := luaTableToConfig(tbl)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func luaTableToConfig(tbl *lua.LTable) *oidcly.Config {
	cfg := &oidcly.Config{
		Issuer:           getStringField(tbl, "issuer"),
		Audience:         getStringField(tbl, "audience"),
		IssuerURL:        getStringField(tbl, "issuer_url"),
		AllowedAlgs:      getStringSliceField(tbl, "allowed_algs"),
		MaxFetchAttempts: int(getNumberField(tbl, "max_fetch_attempts")),
		MetadataCacheTTL: seconds(getNumberField(tbl, "metadata_cache_ttl_sec")),
		HTTPTimeout:      millis(getNumberField(tbl, "http_timeout_ms")),
		RefreshTimeout:   millis(getNumberField(tbl, "refresh_timeout_ms")),
		ClockSkew:        seconds(getNumberField(tbl, "clock_skew_sec")),
	}

	if jwksTbl := getTableField(tbl, "jwks"); jwksTbl != nil {
		cfg.JWKSURL = getStringField(jwksTbl, "url")
		cfg.JWKSCacheTTL = seconds(getNumberField(jwksTbl, "cache_ttl_sec"))
		cfg.JWKSGracePeriod = seconds(getNumberField(jwksTbl, "grace_period_sec"))
		cfg.ForcedRefreshInterval = seconds(getNumberField(jwksTbl, "forced_refresh_interval_sec"))
	}

	if idTbl := getTableField(tbl, "identity"); idTbl != nil {
		cfg.IdentityClaims = getStringSliceField(idTbl, "claims")
		cfg.IdentityScript = getStringField(idTbl, "script")
	}
	return cfg
}

func seconds(n float64) time.Duration { return time.Duration(n * float64(time.Second)) }
func millis(n float64) time.Duration  { return time.Duration(n * float64(time.Millisecond)) }

// Lua table helper functions

func getStringField(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

func getNumberField(tbl *lua.LTable, key string) float64 {
	v := tbl.RawGetString(key)
	if n, ok := v.(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

func getTableField(tbl *lua.LTable, key string) *lua.LTable {
	v := tbl.RawGetString(key)
	if t, ok := v.(*lua.LTable); ok {
		return t
	}
	return nil
}

// getStringSliceField reads an array table in index order.
func getStringSliceField(tbl *lua.LTable, key string) []string {
	t, ok := tbl.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	var result []string
	for i := 1; i <= t.Len(); i++ {
		if s, ok := t.RawGetInt(i).(lua.LString); ok {
			result = append(result, string(s))
		}
	}
	return result
}
