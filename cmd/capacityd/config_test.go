package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/store/memory"
)

const sampleConfig = `
server:
  addr: ":18080"
capacity:
  base_path: /v1
  sample_flush_interval: 2s
  commit_attempts: 5
catalog:
  - id: cpu
    name: vCPU
    unit: CORES
  - id: memory
    name: Memory
    unit: BYTES
quotas:
  prod-b:
    - resource_id: cpu
      limit: 2000
  prod-a:
    - resource_id: cpu
      limit: 4000
    - resource_id: memory
      limit: 1073741824
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capacity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.Server.Addr)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr, "unset fields keep their defaults")
	assert.Equal(t, "/v1", cfg.Capacity.BasePath)
	assert.Equal(t, 2*time.Second, cfg.Capacity.SampleFlushInterval)
	assert.Equal(t, 5, cfg.Capacity.CommitAttempts)
	assert.Len(t, cfg.Catalog, 2)
	assert.Len(t, cfg.Quotas["prod-a"], 2)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/capacity", cfg.Capacity.BasePath)
}

func TestSeed(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	ctx := context.Background()
	e := capacity.New(memory.New())
	require.NoError(t, cfg.seed(ctx, e))

	all, err := e.ListQuotas(ctx, []string{"prod-a", "prod-b"})
	require.NoError(t, err)
	require.Len(t, all["prod-a"], 2)
	assert.EqualValues(t, 4000, all["prod-a"][0].Limit)
	assert.EqualValues(t, 2000, all["prod-b"][0].Limit)
}

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
		wantOut string
	}{
		{name: "valid", body: sampleConfig, wantOut: "ok: 2 resources, 2 products"},
		{
			name:    "unknown resource",
			body:    "quotas:\n  p:\n    - resource_id: gpu\n      limit: 1\n",
			wantErr: "seed quotas for p",
		},
		{
			name:    "bad unit",
			body:    "catalog:\n  - id: gpu\n    name: GPU\n    unit: CARDS\n",
			wantErr: "seed catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newCheckCommand()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{"--config", writeConfig(t, tt.body)})

			err := cmd.ExecuteContext(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, strings.TrimSpace(out.String()))
		})
	}
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug")
	assert.NoError(t, err)
	_, err = newLogger("loud")
	assert.Error(t, err)
}
