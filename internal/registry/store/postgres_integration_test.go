//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"datamarket/internal/registry/models"
	"datamarket/internal/registry/store"
	id "datamarket/pkg/domain"
	"datamarket/pkg/platform/sentinel"
	"datamarket/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(s.ctx, models.DefaultFeePercentage))
}

func (s *PostgresStoreSuite) SetupTest() {
	// Truncate in dependency order, then reset the singleton counters.
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "record_access", "records"))
	_, err := s.postgres.Pool.Exec(s.ctx,
		`UPDATE platform_config SET fee_percentage = $1, next_record_id = 1, grant_seq = 1`,
		models.DefaultFeePercentage)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRecord(owner id.AccountID) *models.Record {
	return &models.Record{
		Owner:          owner,
		ContentAddress: "ipfs://QmTest123",
		Price:          1_000_000,
		Metadata:       `{"title":"Test Dataset"}`,
		RegisteredAt:   time.Now().UTC(),
	}
}

func (s *PostgresStoreSuite) TestCreateAssignsDenseIDs() {
	for n := uint64(1); n <= 3; n++ {
		recordID, err := s.store.CreateRecord(s.ctx, s.newRecord("alice"))
		s.Require().NoError(err)
		s.Equal(id.RecordID(n), recordID)
	}

	record, err := s.store.FindRecord(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(id.RecordID(2), record.ID)
	s.Equal(uint64(2), record.CreatedAt)
	s.Equal(id.AccountID("alice"), record.Owner)
	s.True(record.Active)
}

func (s *PostgresStoreSuite) TestFindMissingRecord() {
	_, err := s.store.FindRecord(s.ctx, 42)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExecuteRecordAtomicity() {
	recordID, err := s.store.CreateRecord(s.ctx, s.newRecord("alice"))
	s.Require().NoError(err)

	_, err = s.store.ExecuteRecord(s.ctx, recordID,
		func(*models.Record) error { return sentinel.ErrInvalidState },
		func(record *models.Record) { record.Metadata = "should not persist" },
	)
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	record, err := s.store.FindRecord(s.ctx, recordID)
	s.Require().NoError(err)
	s.Equal(`{"title":"Test Dataset"}`, record.Metadata)

	updated, err := s.store.ExecuteRecord(s.ctx, recordID,
		func(*models.Record) error { return nil },
		func(record *models.Record) { record.ApplyDeactivation() },
	)
	s.Require().NoError(err)
	s.False(updated.Active)
}

func (s *PostgresStoreSuite) TestGrantIdempotence() {
	recordID, err := s.store.CreateRecord(s.ctx, s.newRecord("alice"))
	s.Require().NoError(err)

	first, err := s.store.GrantAccess(s.ctx, recordID, "bob")
	s.Require().NoError(err)
	s.True(first)

	repeat, err := s.store.GrantAccess(s.ctx, recordID, "bob")
	s.Require().NoError(err)
	s.False(repeat)

	purchased, err := s.store.ListPurchased(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal([]id.RecordID{recordID}, purchased)

	_, err = s.store.GrantAccess(s.ctx, 999, "bob")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestIndexOrdering() {
	var ids []id.RecordID
	for range 3 {
		recordID, err := s.store.CreateRecord(s.ctx, s.newRecord("alice"))
		s.Require().NoError(err)
		ids = append(ids, recordID)
	}

	owned, err := s.store.ListOwned(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(ids, owned)

	// Purchase order follows grant order, not record id order.
	for i := len(ids) - 1; i >= 0; i-- {
		_, err := s.store.GrantAccess(s.ctx, ids[i], "carol")
		s.Require().NoError(err)
	}
	purchased, err := s.store.ListPurchased(s.ctx, "carol")
	s.Require().NoError(err)
	s.Equal([]id.RecordID{ids[2], ids[1], ids[0]}, purchased)

	empty, err := s.store.ListOwned(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *PostgresStoreSuite) TestListActiveAndStats() {
	var ids []id.RecordID
	for range 3 {
		recordID, err := s.store.CreateRecord(s.ctx, s.newRecord("alice"))
		s.Require().NoError(err)
		ids = append(ids, recordID)
	}
	_, err := s.store.ExecuteRecord(s.ctx, ids[0],
		func(*models.Record) error { return nil },
		func(record *models.Record) { record.ApplyDeactivation() },
	)
	s.Require().NoError(err)
	_, err = s.store.GrantAccess(s.ctx, ids[1], "bob")
	s.Require().NoError(err)

	records, err := s.store.ListActive(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Len(records, 2)
	s.Equal(ids[2], records[0].ID)
	s.Equal(ids[1], records[1].ID)

	stats, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Stats{TotalRecords: 3, ActiveRecords: 2, TotalGrants: 1}, stats)
}

func (s *PostgresStoreSuite) TestFeePercentage() {
	fee, err := s.store.FeePercentage(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.DefaultFeePercentage, fee)

	s.Require().NoError(s.store.SetFeePercentage(s.ctx, 20))

	fee, err = s.store.FeePercentage(s.ctx)
	s.Require().NoError(err)
	s.Equal(20, fee)
}
