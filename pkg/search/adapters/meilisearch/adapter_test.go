package meilisearch

import (
	"testing"

	"github.com/niranworks/compass/pkg/search"
)

// TestNewAdapter validates configuration handling only. NewAdapter pings
// the server, so even a well-formed config fails without a running
// Meilisearch; integration coverage lives in tests/integration.
func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "well-formed config without server",
			cfg: &Config{
				Host:      "http://localhost:7700",
				APIKey:    "masterKey123",
				IndexName: "test-documents",
			},
			wantErr: true, // Will fail without real Meilisearch, which is expected
		},
		{
			name: "missing host",
			cfg: &Config{
				APIKey:    "masterKey123",
				IndexName: "test-documents",
			},
			wantErr: true,
		},
		{
			name: "missing index name",
			cfg: &Config{
				Host:   "http://localhost:7700",
				APIKey: "masterKey123",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAdapter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && adapter == nil {
				t.Error("NewAdapter() returned nil adapter")
			}
		})
	}
}

func TestAdapter_Name(t *testing.T) {
	adapter := &Adapter{}
	if got := adapter.Name(); got != "meilisearch" {
		t.Errorf("Name() = %v, want %v", got, "meilisearch")
	}
}

func TestAdapter_ImplementsProvider(t *testing.T) {
	var _ search.Provider = (*Adapter)(nil)
}
