//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"datamarket/internal/platform/logger"
	"datamarket/internal/registry/cache"
	"datamarket/internal/registry/models"
	id "datamarket/pkg/domain"
	"datamarket/pkg/testutil/containers"
)

type RecordCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RecordCache
	ctx   context.Context
}

func TestRecordCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RecordCacheSuite))
}

func (s *RecordCacheSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = cache.NewWithClient(s.redis.Client, 5*time.Minute, logger.New())
}

func (s *RecordCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RecordCacheSuite) record() *models.Record {
	return &models.Record{
		ID:             7,
		Owner:          "alice",
		ContentAddress: "ipfs://QmTest123",
		Price:          1_000_000,
		Metadata:       `{"title":"Test Dataset"}`,
		Active:         true,
		CreatedAt:      7,
		RegisteredAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func (s *RecordCacheSuite) TestMissThenHit() {
	_, ok := s.cache.GetRecord(s.ctx, 7)
	s.False(ok)

	want := s.record()
	s.cache.SetRecord(s.ctx, want)

	got, ok := s.cache.GetRecord(s.ctx, 7)
	s.Require().True(ok)
	s.Equal(want, got)
}

func (s *RecordCacheSuite) TestInvalidation() {
	s.cache.SetRecord(s.ctx, s.record())
	s.cache.InvalidateRecord(s.ctx, 7)

	_, ok := s.cache.GetRecord(s.ctx, 7)
	s.False(ok)
}

func (s *RecordCacheSuite) TestCorruptEntryDropped() {
	key := "datamarket:record:" + id.RecordID(7).String()
	s.Require().NoError(s.redis.Client.Set(s.ctx, key, "{not json", 0).Err())

	_, ok := s.cache.GetRecord(s.ctx, 7)
	s.False(ok)

	// The corrupt entry is evicted, not left to fail every read.
	exists, err := s.redis.Client.Exists(s.ctx, key).Result()
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *RecordCacheSuite) TestEntriesExpire() {
	short := cache.NewWithClient(s.redis.Client, 100*time.Millisecond, logger.New())
	short.SetRecord(s.ctx, s.record())

	_, ok := short.GetRecord(s.ctx, 7)
	s.Require().True(ok)

	time.Sleep(200 * time.Millisecond)

	_, ok = short.GetRecord(s.ctx, 7)
	s.False(ok)
}
