package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simcore/internal/core/systems/navigation"
	"github.com/zeusync/simcore/pkg/geom"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	const doc = `
world:
  fixed_delta: 20ms
  substeps: 2
  spatial:
    bounds: {min: {x: 0, y: 0}, max: {x: 256, y: 128}}
  navigation:
    cell_size: 8
    width: 32
    height: 16
    sampling: overlap
  pathfinding:
    workers: 2
    heuristic: octile
    diagonal: true
log:
  level: debug
  encoding: console
server:
  listen_addr: ":9090"
  shutdown_timeout: 3s
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, cfg.World.FixedDelta)
	assert.Equal(t, 2, cfg.World.Substeps)
	assert.Equal(t, geom.Box(0, 0, 256, 128), cfg.World.Spatial.Bounds)
	assert.Equal(t, navigation.SampleOverlap, cfg.World.Navigation.Sampling)
	assert.Equal(t, 2, cfg.World.Pathfinding.Workers)
	assert.True(t, cfg.World.Pathfinding.Diagonal)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)

	def := Default()
	assert.Equal(t, def.World.MaxCatchUp, cfg.World.MaxCatchUp, "omitted keys keep defaults")
	assert.Equal(t, def.World.Pathfinding.CacheSize, cfg.World.Pathfinding.CacheSize)
	assert.Equal(t, def.Server.MaxClients, cfg.Server.MaxClients)
}

func TestLoadEmpty(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "unknown key",
			doc:  "world:\n  fixed_delta: 1s\n  gravity: 3\n",
			want: []string{"gravity"},
		},
		{
			name: "bad duration",
			doc:  "world:\n  fixed_delta: soon\n",
			want: []string{"decode config"},
		},
		{
			name: "every violation reported",
			doc:  "world:\n  substeps: 0\n  pathfinding:\n    heuristic: zigzag\nlog:\n  level: loud\nserver:\n  max_clients: 0\n",
			want: []string{"substeps", "zigzag", "loud", "max clients"},
		},
		{
			name: "log encoding",
			doc:  "log:\n  encoding: xml\n",
			want: []string{"xml"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			for _, part := range tt.want {
				assert.Contains(t, err.Error(), part)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: 127.0.0.1:0\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", cfg.Server.ListenAddr)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
