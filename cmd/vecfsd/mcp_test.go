package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecfs/internal/config"
)

func TestMCPRequester(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(*config.Config)
		want    string
		wantErr bool
	}{
		{
			name: "explicit requester",
			cfg:  func(c *config.Config) { c.MCP.Requester = "@@node2.shinkai/bob" },
			want: "@@node2.shinkai/bob",
		},
		{
			name: "first profile",
			cfg:  func(c *config.Config) { c.VectorFS.Profiles = []string{"main", "work"} },
			want: "@@node1.shinkai/main",
		},
		{
			name:    "nothing configured",
			cfg:     func(c *config.Config) { c.VectorFS.Profiles = nil },
			wantErr: true,
		},
		{
			name:    "bad requester",
			cfg:     func(c *config.Config) { c.MCP.Requester = "bob" },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.VectorFS.NodeName = "@@node1.shinkai"
			tt.cfg(cfg)

			got, err := mcpRequester(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
