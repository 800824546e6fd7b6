package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConfig_Kind(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindMemory, Config{}.Kind())
	require.Equal(t, KindMemory, Config{RESTURL: "https://kv"}.Kind(), "url without token is not enough")
	require.Equal(t, KindMemory, Config{RESTToken: "t"}.Kind())
	require.Equal(t, KindREST, Config{RESTURL: "https://kv", RESTToken: "t", RedisAddr: "r:6379"}.Kind())
	require.Equal(t, KindRedis, Config{RedisAddr: "r:6379"}.Kind())
	require.Equal(t, KindMemory, Config{RESTURL: "  ", RESTToken: " "}.Kind())
}

func TestNew_BuildsMatchingStore(t *testing.T) {
	t.Parallel()
	log := zaptest.NewLogger(t)

	s, kind := New(Config{}, log)
	require.Equal(t, KindMemory, kind)
	require.IsType(t, &Memory{}, s)

	s, kind = New(Config{RESTURL: "https://kv", RESTToken: "t", Timeout: time.Second}, log)
	require.Equal(t, KindREST, kind)
	require.IsType(t, &REST{}, s)

	s, kind = New(Config{RedisAddr: "127.0.0.1:1", Timeout: time.Second}, nil)
	require.Equal(t, KindRedis, kind)
	r, ok := s.(*Redis)
	require.True(t, ok)
	require.NoError(t, r.Close())
}
