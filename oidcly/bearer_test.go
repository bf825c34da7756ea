package oidcly

import (
	"errors"
	"testing"
)

func TestParseBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"BEARER   abc.def.ghi  ", "abc.def.ghi", true},
		{"", "", false},
		{"   ", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer a b", "", false},
		{"abc.def.ghi", "", false},
	}
	for _, tt := range tests {
		got, err := ParseBearer(tt.header)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseBearer(%q) = %q, %v; want %q", tt.header, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrMissingAuthHeader) {
			t.Errorf("ParseBearer(%q): want ErrMissingAuthHeader, got %v", tt.header, err)
		}
	}
}
