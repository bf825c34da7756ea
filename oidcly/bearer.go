package oidcly

import (
	"strings"

	"github.com/keksclan/goOIDCly/internal/failure"
)

// ParseBearer extracts the token from an Authorization header value. The
// scheme is matched case-insensitively and exactly one token must follow.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", failure.New(failure.MissingAuthHeader, "authorization header is empty")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", failure.New(failure.MissingAuthHeader, "authorization scheme is not bearer")
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", failure.New(failure.MissingAuthHeader, "authorization header must carry exactly one token")
	}
	return token, nil
}
