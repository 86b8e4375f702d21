package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		env     map[string]string
		flags   []string
		check   func(t *testing.T, cfg *Config)
		wantErr error
	}{
		{
			name: "defaults",
			body: "{}\n",
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "info", cfg.LogLevel)
				require.Equal(t, "jump", cfg.Placement.Strategy)
				require.Equal(t, uint32(1), cfg.Placement.LayoutVersion)
				require.Equal(t, 4096, cfg.CacheLayouts)
				fd, err := cfg.FaultDomain()
				require.NoError(t, err)
				require.Equal(t, domain.CompNode, fd)
			},
		},
		{
			name: "file values and classes",
			body: `
log_level: debug
placement:
  strategy: ring
  fault_domain: rank
  ring_nr: 4
topology:
  source: s3://pools/topology.yaml
classes:
  - name: RP_4G1
    group_size: 4
    group_count: 1
  - name: EC_6P3G1
    group_size: 9
    group_count: 1
    data_shards: 6
    parity_shards: 3
`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "debug", cfg.LogLevel)
				require.Equal(t, "ring", cfg.Placement.Strategy)
				require.Equal(t, 4, cfg.Placement.RingCount)
				require.Equal(t, "s3://pools/topology.yaml", cfg.TopologySource)
				require.Len(t, cfg.Classes, 2)
				require.Equal(t, 6, cfg.Classes[1].DataShards)
			},
		},
		{
			name: "environment overrides file",
			body: "placement:\n  strategy: ring\n",
			env:  map[string]string{"ZPLACE_PLACEMENT_STRATEGY": "jump"},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "jump", cfg.Placement.Strategy)
			},
		},
		{
			name:  "flag overrides environment",
			body:  "{}\n",
			env:   map[string]string{"ZPLACE_LOG_LEVEL": "warn"},
			flags: []string{"--log-level", "trace"},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "trace", cfg.LogLevel)
			},
		},
		{
			name:    "unknown strategy",
			body:    "placement:\n  strategy: crush\n",
			wantErr: zerrors.ErrInvalidArgument,
		},
		{
			name:    "bad class",
			body:    "classes:\n  - name: EC_BAD\n    group_size: 4\n    data_shards: 2\n    parity_shards: 1\n",
			wantErr: zerrors.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cmd := &cobra.Command{Use: "test"}
			cmd.PersistentFlags().String("log-level", "info", "")
			require.NoError(t, cmd.PersistentFlags().Parse(tt.flags))

			cfg, err := LoadConfig(writeConfig(t, tt.body), cmd)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
