package search

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "error with message",
			err: &Error{
				Op:  "Upsert",
				Err: ErrIndexingFailed,
				Msg: "document has no shard key",
			},
			expected: "Upsert: document has no shard key: failed to index document",
		},
		{
			name: "error without message",
			err: &Error{
				Op:  "Stats",
				Err: ErrBackendUnavailable,
			},
			expected: "Stats: search backend unavailable",
		},
		{
			name: "error with nested error",
			err: &Error{
				Op:  "Delete",
				Err: errors.New("connection timeout"),
				Msg: "failed to reach backend",
			},
			expected: "Delete: failed to reach backend: connection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name: "wrapped ErrNotFound matches",
			err: &Error{
				Op:  "Get",
				Err: ErrNotFound,
			},
			target: ErrNotFound,
			want:   true,
		},
		{
			name: "double wrapped error matches",
			err: &Error{
				Op: "Upsert",
				Err: &Error{
					Op:  "Index",
					Err: ErrIndexingFailed,
				},
			},
			target: ErrIndexingFailed,
			want:   true,
		},
		{
			name: "different sentinel does not match",
			err: &Error{
				Op:  "Index",
				Err: ErrIndexingFailed,
			},
			target: ErrNotFound,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_AsUsage(t *testing.T) {
	wrapped := &Error{
		Op: "Upsert",
		Err: &Error{
			Op:  "Index",
			Err: ErrIndexingFailed,
			Msg: "validation failed",
		},
	}

	var serr *Error
	if !errors.As(wrapped, &serr) {
		t.Fatal("errors.As failed to match *Error type")
	}
	if serr.Op != "Upsert" {
		t.Errorf("errors.As returned wrong error: got Op=%q, want %q", serr.Op, "Upsert")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "ErrNotFound",
			err:      ErrNotFound,
			expected: "document not found in search index",
		},
		{
			name:     "ErrInvalidQuery",
			err:      ErrInvalidQuery,
			expected: "invalid search query",
		},
		{
			name:     "ErrBackendUnavailable",
			err:      ErrBackendUnavailable,
			expected: "search backend unavailable",
		},
		{
			name:     "ErrIndexingFailed",
			err:      ErrIndexingFailed,
			expected: "failed to index document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProviderType_Constants(t *testing.T) {
	tests := []struct {
		name     string
		provider ProviderType
		expected string
	}{
		{
			name:     "Bleve provider",
			provider: ProviderTypeBleve,
			expected: "bleve",
		},
		{
			name:     "Algolia provider",
			provider: ProviderTypeAlgolia,
			expected: "algolia",
		},
		{
			name:     "Meilisearch provider",
			provider: ProviderTypeMeilisearch,
			expected: "meilisearch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.provider) != tt.expected {
				t.Errorf("ProviderType = %q, want %q", tt.provider, tt.expected)
			}
		})
	}
}
