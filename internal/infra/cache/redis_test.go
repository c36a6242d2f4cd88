package cache_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/bankcards-api/internal/infra/cache"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cachedPrincipal struct {
	Username string
	Role     string
}

func TestRedis_GetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := cache.NewRedis[cachedPrincipal](db, "principal:", time.Minute, zap.NewNop())

	mock.ExpectGet("principal:alice").SetVal(`{"Username":"alice","Role":"ROLE_USER"}`)

	v, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "alice", v.Username)
	assert.Equal(t, "ROLE_USER", v.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_GetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := cache.NewRedis[cachedPrincipal](db, "principal:", time.Minute, zap.NewNop())

	mock.ExpectGet("principal:bob").RedisNil()

	_, ok := c.Get("bob")
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_GetErrorIsMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := cache.NewRedis[cachedPrincipal](db, "principal:", time.Minute, zap.NewNop())

	mock.ExpectGet("principal:bob").SetErr(errors.New("connection reset"))

	_, ok := c.Get("bob")
	assert.False(t, ok)
}

func TestRedis_SetAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := cache.NewRedis[cachedPrincipal](db, "principal:", time.Minute, zap.NewNop())

	mock.ExpectSet("principal:alice", `{"Username":"alice","Role":"ROLE_ADMIN"}`, time.Minute).SetVal("OK")
	mock.ExpectDel("principal:alice").SetVal(1)

	c.Set("alice", cachedPrincipal{Username: "alice", Role: "ROLE_ADMIN"})
	c.Delete("alice")

	require.NoError(t, mock.ExpectationsWereMet())
}
