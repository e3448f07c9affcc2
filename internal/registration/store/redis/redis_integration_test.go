//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"outbreak/internal/registration/store"
	"outbreak/internal/registration/store/redis"
	"outbreak/internal/registration/store/storetest"
	"outbreak/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	storetest.Suite
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.New = func() store.Store {
		s.Require().NoError(s.redis.FlushAll(context.Background()))
		return redis.NewRedis(s.redis.Client, redis.WithMaxRetries(50))
	}
}
