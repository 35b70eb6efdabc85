package store

import (
	"context"
	"sync"

	"datamarket/internal/registry/models"
	id "datamarket/pkg/domain"
	"datamarket/pkg/platform/sentinel"
)

type accessKey struct {
	record  id.RecordID
	account id.AccountID
}

// InMemory holds the complete ledger state behind a single mutex. It is the
// canonical store for unit tests and development.
//
// All state flows through the methods below; records handed out are clones so
// callers can never mutate ledger state directly. A failed validation inside
// ExecuteRecord returns before any field is written, which is the whole
// atomicity story: there is no partial update to roll back.
type InMemory struct {
	mu        sync.RWMutex
	records   map[id.RecordID]*models.Record
	owned     map[id.AccountID][]id.RecordID
	purchased map[id.AccountID][]id.RecordID
	access    map[accessKey]struct{}
	nextID    uint64
	fee       int
}

// NewInMemory creates an empty ledger with the given starting fee percentage.
func NewInMemory(defaultFee int) *InMemory {
	return &InMemory{
		records:   make(map[id.RecordID]*models.Record),
		owned:     make(map[id.AccountID][]id.RecordID),
		purchased: make(map[id.AccountID][]id.RecordID),
		access:    make(map[accessKey]struct{}),
		nextID:    1,
		fee:       defaultFee,
	}
}

// CreateRecord assigns the next dense ID, stores the record, and appends it
// to the owner's index. The record's ID, CreatedAt, and Active fields are set
// here; callers populate the rest.
func (s *InMemory) CreateRecord(_ context.Context, record *models.Record) (id.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordID := id.RecordID(s.nextID)
	stored := record.Clone()
	stored.ID = recordID
	stored.CreatedAt = s.nextID
	stored.Active = true

	s.records[recordID] = stored
	s.owned[stored.Owner] = append(s.owned[stored.Owner], recordID)
	s.nextID++
	return recordID, nil
}

// FindRecord returns a copy of the record or sentinel.ErrNotFound.
func (s *InMemory) FindRecord(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

// ExecuteRecord runs validate then mutate against the record while holding
// the ledger lock. If validate fails, no state is written and the error is
// returned as-is. Returns a copy of the (possibly mutated) record.
func (s *InMemory) ExecuteRecord(_ context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	return record.Clone(), nil
}

// GrantAccess marks (recordID, account) as granted. The first grant appends
// the record to the account's purchase index; repeat grants change nothing.
// Returns whether this was the first grant for the pair.
func (s *InMemory) GrantAccess(_ context.Context, recordID id.RecordID, account id.AccountID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[recordID]; !ok {
		return false, sentinel.ErrNotFound
	}
	key := accessKey{record: recordID, account: account}
	if _, granted := s.access[key]; granted {
		return false, nil
	}
	s.access[key] = struct{}{}
	s.purchased[account] = append(s.purchased[account], recordID)
	return true, nil
}

// HasAccess reports whether an explicit grant exists for the pair. The
// owner's implicit access is a service-level rule, not store state.
func (s *InMemory) HasAccess(_ context.Context, recordID id.RecordID, account id.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, granted := s.access[accessKey{record: recordID, account: account}]
	return granted, nil
}

// ListOwned returns the account's record IDs in registration order.
// Accounts with no records get an empty slice, never an error.
func (s *InMemory) ListOwned(_ context.Context, account id.AccountID) ([]id.RecordID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.owned[account]
	out := make([]id.RecordID, len(ids))
	copy(out, ids)
	return out, nil
}

// ListPurchased returns the record IDs granted to the account in grant order,
// each at most once.
func (s *InMemory) ListPurchased(_ context.Context, account id.AccountID) ([]id.RecordID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.purchased[account]
	out := make([]id.RecordID, len(ids))
	copy(out, ids)
	return out, nil
}

// ListActive returns active records newest-first for marketplace browsing.
func (s *InMemory) ListActive(_ context.Context, limit, offset int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Record, 0, limit)
	skipped := 0
	// IDs are dense from 1, so walking the counter downward yields newest-first.
	for n := s.nextID - 1; n >= 1; n-- {
		record, ok := s.records[id.RecordID(n)]
		if !ok || !record.Active {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, record.Clone())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FeePercentage returns the current platform fee.
func (s *InMemory) FeePercentage(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fee, nil
}

// SetFeePercentage overwrites the platform fee. Bounds are enforced by the
// service before this is called.
func (s *InMemory) SetFeePercentage(_ context.Context, fee int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fee = fee
	return nil
}

// Stats returns ledger-owned counters.
func (s *InMemory) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.Stats{
		TotalRecords: s.nextID - 1,
		TotalGrants:  uint64(len(s.access)),
	}
	for _, record := range s.records {
		if record.Active {
			stats.ActiveRecords++
		}
	}
	return stats, nil
}
