package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizrank/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Cache struct {
		Backend        string
		LeaderboardTTL time.Duration
	}

	Redis struct {
		Addrs []string
	}
}

func defaults() testConfig {
	var c testConfig
	c.HTTP.Port = 8080
	c.Cache.Backend = "memory"
	c.Cache.LeaderboardTTL = 180 * time.Second
	return c
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		file   string
		env    map[string]string
		assert func(t *testing.T, c testConfig, err error)
	}{
		"defaults survive an empty file": {
			file: `{}`,
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, int32(8080), c.HTTP.Port)
				assert.Equal(t, 180*time.Second, c.Cache.LeaderboardTTL)
			},
		},

		"file overrides defaults": {
			file: "http:\n  port: 9000\ncache:\n  backend: redis\n  leaderboardttl: 90s\nredis:\n  addrs: [\"localhost:6379\"]\n",
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, int32(9000), c.HTTP.Port)
				assert.Equal(t, "redis", c.Cache.Backend)
				assert.Equal(t, 90*time.Second, c.Cache.LeaderboardTTL)
				assert.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs)
			},
		},

		"env overrides file": {
			file: "http:\n  port: 9000\n",
			env:  map[string]string{"HTTP_PORT": "9100", "CACHE_BACKEND": "redis"},
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, int32(9100), c.HTTP.Port)
				assert.Equal(t, "redis", c.Cache.Backend)
			},
		},

		"missing file": {
			file: "",
			assert: func(t *testing.T, c testConfig, err error) {
				require.Error(t, err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			if tt.file != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o600))
			}

			c := defaults()
			err := config.Load(path, &c)
			tt.assert(t, c, err)
		})
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("HTTP_PORT", "7000")

	c := defaults()
	require.NoError(t, config.Load("", &c))

	assert.Equal(t, int32(7000), c.HTTP.Port)
	assert.Equal(t, "memory", c.Cache.Backend)
}
