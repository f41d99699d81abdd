package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizrank/internal/server"
)

func TestInit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := map[string]struct {
		arrange func(t *testing.T) server.Config
		assert  func(t *testing.T, s *server.Server, err error)
	}{
		"in-process defaults": {
			arrange: func(t *testing.T) server.Config {
				return testConfig()
			},
			assert: func(t *testing.T, s *server.Server, err error) {
				require.NoError(t, err)
				assertServes(t, s)
			},
		},

		"redis cache and pubsub": {
			arrange: func(t *testing.T) server.Config {
				mr := miniredis.RunT(t)

				c := testConfig()
				c.Cache.Backend = server.BackendRedis
				c.Cache.Coalesce = true
				c.Redis.Cache.Addrs = []string{mr.Addr()}
				c.Notify.Backend = server.BackendRedis
				c.Redis.Pubsub.Addrs = []string{mr.Addr()}
				return c
			},
			assert: func(t *testing.T, s *server.Server, err error) {
				require.NoError(t, err)
				assertServes(t, s)
			},
		},

		"unreachable redis": {
			arrange: func(t *testing.T) server.Config {
				mr := miniredis.RunT(t)
				addr := mr.Addr()
				mr.Close()

				c := testConfig()
				c.Cache.Backend = server.BackendRedis
				c.Redis.Cache.Addrs = []string{addr}
				return c
			},
			assert: func(t *testing.T, s *server.Server, err error) {
				require.Error(t, err)
			},
		},

		"missing auth secret": {
			arrange: func(t *testing.T) server.Config {
				c := testConfig()
				c.Auth.Secret = ""
				return c
			},
			assert: func(t *testing.T, s *server.Server, err error) {
				require.ErrorContains(t, err, "auth secret is required")
				assert.Nil(t, s)
			},
		},

		"unknown store driver": {
			arrange: func(t *testing.T) server.Config {
				c := testConfig()
				c.Store.Driver = "sqlite"
				return c
			},
			assert: func(t *testing.T, s *server.Server, err error) {
				require.ErrorContains(t, err, `unknown store driver "sqlite"`)
			},
		},

		"unknown cache backend": {
			arrange: func(t *testing.T) server.Config {
				c := testConfig()
				c.Cache.Backend = "memcached"
				return c
			},
			assert: func(t *testing.T, s *server.Server, err error) {
				require.ErrorContains(t, err, `unknown cache backend "memcached"`)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := server.Init(tt.arrange(t))
			if s != nil {
				t.Cleanup(s.Shutdown)
			}
			tt.assert(t, s, err)
		})
	}
}

func TestShutdown_ClosesLiveConnections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	s, err := server.Init(testConfig())
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/leaderboard/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	// A confirmed subscription means the connection is fully registered.
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "subscribe_quiz", "quiz_id": 1}))
	_, b, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(b), "subscription_confirmed")

	s.Shutdown()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func testConfig() server.Config {
	c := server.DefaultConfig()
	c.Auth.Secret = "s3cret"
	return c
}

func assertServes(t *testing.T, s *server.Server) {
	t.Helper()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leaderboard/subject", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var all map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 9)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quizrank_cache_operations_total")
}
