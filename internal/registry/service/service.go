// Package service implements the registry ledger's state-transition rules.
//
// Every mutation validates all preconditions before touching state. Stores
// guarantee that a failed validation writes nothing, so a rejected mutation
// and a never-attempted one are indistinguishable and callers may retry
// freely. Authorization (owner and admin checks) lives here, not in the
// transport layer: the admin account is ledger configuration, fixed at
// construction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	registrymetrics "datamarket/internal/registry/metrics"
	"datamarket/internal/registry/models"
	id "datamarket/pkg/domain"
	dErrors "datamarket/pkg/domain-errors"
	"datamarket/pkg/platform/sentinel"
	"datamarket/pkg/requestcontext"
)

// LedgerStore owns all persistent registry state. Both the in-memory and
// Postgres implementations keep each method atomic: the ExecuteRecord
// callback pair runs under the store's lock (mutex or row lock) so a failed
// validation never leaves a partial write.
type LedgerStore interface {
	CreateRecord(ctx context.Context, record *models.Record) (id.RecordID, error)
	FindRecord(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	ExecuteRecord(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
	GrantAccess(ctx context.Context, recordID id.RecordID, account id.AccountID) (bool, error)
	HasAccess(ctx context.Context, recordID id.RecordID, account id.AccountID) (bool, error)
	ListOwned(ctx context.Context, account id.AccountID) ([]id.RecordID, error)
	ListPurchased(ctx context.Context, account id.AccountID) ([]id.RecordID, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.Record, error)
	FeePercentage(ctx context.Context) (int, error)
	SetFeePercentage(ctx context.Context, fee int) error
	Stats(ctx context.Context) (models.Stats, error)
}

// RecordCache is an optional read-through cache for record lookups.
// Implementations must treat every miss as recoverable; the store is always
// the source of truth.
type RecordCache interface {
	GetRecord(ctx context.Context, recordID id.RecordID) (*models.Record, bool)
	SetRecord(ctx context.Context, record *models.Record)
	InvalidateRecord(ctx context.Context, recordID id.RecordID)
}

// Service is the registry ledger.
type Service struct {
	store   LedgerStore
	admin   id.AccountID
	cache   RecordCache
	metrics *registrymetrics.Metrics
	audit   *auditEmitter
	tracer  trace.Tracer
}

type serviceConfig struct {
	logger         *slog.Logger
	metrics        *registrymetrics.Metrics
	cache          RecordCache
	auditPublisher AuditPublisher
}

// Option configures the Service.
type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

func WithCache(cache RecordCache) Option {
	return func(cfg *serviceConfig) { cfg.cache = cache }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) { cfg.auditPublisher = publisher }
}

// New constructs the ledger service. The admin account is the only identity
// permitted to grant access or change the platform fee.
func New(store LedgerStore, admin id.AccountID, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if admin.IsZero() {
		return nil, fmt.Errorf("admin account is required")
	}
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{
		store:   store,
		admin:   admin,
		cache:   cfg.cache,
		metrics: cfg.metrics,
		audit:   newAuditEmitter(cfg.logger, cfg.auditPublisher),
		tracer:  otel.Tracer("datamarket/registry"),
	}, nil
}

// Admin returns the platform admin account.
func (s *Service) Admin() id.AccountID {
	return s.admin
}

// Register creates a new record owned by the caller and returns its ID.
// IDs are dense from 1 and strictly increasing across the ledger's lifetime.
func (s *Service) Register(ctx context.Context, caller id.AccountID, contentAddress string, price int64, metadata string) (id.RecordID, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Register")
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	if price <= 0 {
		s.metrics.IncRejected("register", string(dErrors.CodeInvalidPrice))
		return 0, dErrors.New(dErrors.CodeInvalidPrice, "price must be positive")
	}

	record := &models.Record{
		Owner:          caller,
		ContentAddress: contentAddress,
		Price:          uint64(price),
		Metadata:       metadata,
		RegisteredAt:   requestcontext.Now(ctx),
	}
	recordID, err := s.store.CreateRecord(ctx, record)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create record")
	}
	span.SetAttributes(attribute.Int64("registry.record_id", int64(recordID)))

	s.metrics.IncRegistered()
	s.audit.emit(ctx, models.AuditEvent{
		Action:   models.ActionRecordRegistered,
		Caller:   caller,
		RecordID: recordID,
	})
	return recordID, nil
}

// UpdateMetadata overwrites a record's metadata in place. Owner only.
func (s *Service) UpdateMetadata(ctx context.Context, caller id.AccountID, recordID id.RecordID, newMetadata string) error {
	ctx, span := s.tracer.Start(ctx, "registry.UpdateMetadata")
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return err
	}

	_, err := s.store.ExecuteRecord(ctx, recordID,
		func(record *models.Record) error {
			if !record.IsOwnedBy(caller) {
				return dErrors.New(dErrors.CodeUnauthorized, "only the owner may update metadata")
			}
			return nil
		},
		func(record *models.Record) {
			record.Metadata = newMetadata
		},
	)
	if err != nil {
		return s.rejectRecordErr("update_metadata", err)
	}

	s.invalidateRecord(ctx, recordID)
	s.metrics.IncMetadataUpdated()
	s.audit.emit(ctx, models.AuditEvent{
		Action:   models.ActionMetadataUpdated,
		Caller:   caller,
		RecordID: recordID,
	})
	return nil
}

// GrantAccess marks the beneficiary as having access to the record. Admin
// only: access provisioning is centrally mediated, and whatever payment
// settlement precedes a grant is the transport layer's concern. Granting
// twice is idempotent; the purchase index keeps at most one entry per pair.
func (s *Service) GrantAccess(ctx context.Context, caller id.AccountID, recordID id.RecordID, beneficiary id.AccountID) error {
	ctx, span := s.tracer.Start(ctx, "registry.GrantAccess")
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return err
	}
	if beneficiary.IsZero() {
		s.metrics.IncRejected("grant_access", string(dErrors.CodeValidation))
		return dErrors.New(dErrors.CodeValidation, "beneficiary account is required")
	}
	if _, err := s.store.FindRecord(ctx, recordID); err != nil {
		return s.rejectRecordErr("grant_access", err)
	}
	if caller != s.admin {
		s.metrics.IncRejected("grant_access", string(dErrors.CodeUnauthorized))
		return dErrors.New(dErrors.CodeUnauthorized, "only the platform admin may grant access")
	}

	firstGrant, err := s.store.GrantAccess(ctx, recordID, beneficiary)
	if err != nil {
		return s.rejectRecordErr("grant_access", err)
	}

	s.metrics.IncAccessGranted(firstGrant)
	if firstGrant {
		s.audit.emit(ctx, models.AuditEvent{
			Action:      models.ActionAccessGranted,
			Caller:      caller,
			RecordID:    recordID,
			Beneficiary: beneficiary,
		})
	}
	return nil
}

// Deactivate flips a record inactive. Owner only. Deactivating an already
// inactive record succeeds and leaves state unchanged; the transition is
// one-way and nothing in this service sets a record active again.
func (s *Service) Deactivate(ctx context.Context, caller id.AccountID, recordID id.RecordID) error {
	ctx, span := s.tracer.Start(ctx, "registry.Deactivate")
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return err
	}

	_, err := s.store.ExecuteRecord(ctx, recordID,
		func(record *models.Record) error {
			if !record.IsOwnedBy(caller) {
				return dErrors.New(dErrors.CodeUnauthorized, "only the owner may deactivate a record")
			}
			return nil
		},
		func(record *models.Record) {
			record.ApplyDeactivation()
		},
	)
	if err != nil {
		return s.rejectRecordErr("deactivate", err)
	}

	s.invalidateRecord(ctx, recordID)
	s.metrics.IncDeactivated()
	s.audit.emit(ctx, models.AuditEvent{
		Action:   models.ActionRecordDeactivated,
		Caller:   caller,
		RecordID: recordID,
	})
	return nil
}

// SetPlatformFee overwrites the platform fee percentage. Admin only, bounded
// to [0, MaxFeePercentage].
func (s *Service) SetPlatformFee(ctx context.Context, caller id.AccountID, fee int) error {
	ctx, span := s.tracer.Start(ctx, "registry.SetPlatformFee")
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return err
	}
	if caller != s.admin {
		s.metrics.IncRejected("set_platform_fee", string(dErrors.CodeUnauthorized))
		return dErrors.New(dErrors.CodeUnauthorized, "only the platform admin may change the fee")
	}
	if fee < 0 || fee > models.MaxFeePercentage {
		s.metrics.IncRejected("set_platform_fee", string(dErrors.CodeInvalidFee))
		return dErrors.New(dErrors.CodeInvalidFee, fmt.Sprintf("fee percentage must be between 0 and %d", models.MaxFeePercentage))
	}

	if err := s.store.SetFeePercentage(ctx, fee); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set platform fee")
	}

	s.metrics.IncFeeChanged()
	s.audit.emit(ctx, models.AuditEvent{
		Action:        models.ActionFeeChanged,
		Caller:        caller,
		FeePercentage: fee,
	})
	return nil
}

// GetRecord returns the record or a NotFound domain error.
func (s *Service) GetRecord(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	if s.cache != nil {
		if record, ok := s.cache.GetRecord(ctx, recordID); ok {
			return record, nil
		}
	}
	record, err := s.store.FindRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if s.cache != nil {
		s.cache.SetRecord(ctx, record)
	}
	return record, nil
}

// HasAccess reports whether account may access the record: true for the
// owner or any explicitly granted account. Missing records yield false,
// never an error.
func (s *Service) HasAccess(ctx context.Context, recordID id.RecordID, account id.AccountID) (bool, error) {
	record, err := s.GetRecord(ctx, recordID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if record.IsOwnedBy(account) {
		return true, nil
	}
	granted, err := s.store.HasAccess(ctx, recordID, account)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check access")
	}
	return granted, nil
}

// ListOwned returns the account's record IDs in registration order.
func (s *Service) ListOwned(ctx context.Context, account id.AccountID) ([]id.RecordID, error) {
	ids, err := s.store.ListOwned(ctx, account)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list owned records")
	}
	return ids, nil
}

// ListPurchased returns the record IDs granted to the account in grant order.
func (s *Service) ListPurchased(ctx context.Context, account id.AccountID) ([]id.RecordID, error) {
	ids, err := s.store.ListPurchased(ctx, account)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list purchased records")
	}
	return ids, nil
}

// ListActive returns active records newest-first for marketplace browsing.
func (s *Service) ListActive(ctx context.Context, limit, offset int) ([]*models.Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.store.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active records")
	}
	return records, nil
}

// FeePercentage returns the current platform fee.
func (s *Service) FeePercentage(ctx context.Context) (int, error) {
	fee, err := s.store.FeePercentage(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read platform fee")
	}
	return fee, nil
}

// Stats returns ledger-owned counters for the platform dashboard.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registry stats")
	}
	return stats, nil
}

func (s *Service) invalidateRecord(ctx context.Context, recordID id.RecordID) {
	if s.cache != nil {
		s.cache.InvalidateRecord(ctx, recordID)
	}
}

// rejectRecordErr translates store and validation failures for record-scoped
// mutations, counting the rejection.
func (s *Service) rejectRecordErr(operation string, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncRejected(operation, string(dErrors.CodeNotFound))
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	case dErrors.HasCode(err, dErrors.CodeUnauthorized):
		s.metrics.IncRejected(operation, string(dErrors.CodeUnauthorized))
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
	}
}

func requireCaller(caller id.AccountID) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return nil
}
