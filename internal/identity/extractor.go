// Package identity picks a single identity string out of validated claims.
package identity

import "github.com/rs/zerolog"

// DefaultClaims is the preference list used when none is configured:
// email addresses first, then display and account names, then the subject.
var DefaultClaims = []string{"email", "emails", "name", "unique_name", "sub"}

// Match is the outcome of an extraction. An empty Value means no candidate
// claim was present, which is not an error.
type Match struct {
	Value string
	// Claim names the claim the value came from, or "script".
	Claim string
}

// Extractor selects the first present claim from an ordered preference list.
// An optional Script runs first; when it yields nothing the list is used.
//
// Concurrency: safe for concurrent use.
type Extractor struct {
	claims []string
	script *Script
	log    zerolog.Logger
}

// NewExtractor creates an Extractor. A nil or empty list selects
// DefaultClaims. script may be nil.
func NewExtractor(claims []string, script *Script, log zerolog.Logger) *Extractor {
	if len(claims) == 0 {
		claims = DefaultClaims
	}
	return &Extractor{
		claims: append([]string(nil), claims...),
		script: script,
		log:    log,
	}
}

// Extract returns the identity for claims. First match wins; values are
// never merged.
func (e *Extractor) Extract(claims map[string]any) Match {
	if e.script != nil {
		v, err := e.script.Evaluate(claims)
		switch {
		case err != nil:
			e.log.Warn().Err(err).Msg("identity script failed, using claim preference list")
		case v != "":
			return Match{Value: v, Claim: "script"}
		}
	}
	for _, name := range e.claims {
		if v := stringValue(claims[name]); v != "" {
			return Match{Value: v, Claim: name}
		}
	}
	return Match{}
}

// stringValue accepts a string or the first non-empty string of a list, the
// shape some providers use for multi-valued email claims.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		for _, s := range val {
			if s != "" {
				return s
			}
		}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
