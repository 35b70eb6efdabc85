package registry

import (
	"log/slog"

	"datamarket/internal/registry/handler"
	"datamarket/internal/registry/service"
	id "datamarket/pkg/domain"
	"datamarket/pkg/platform/middleware/auth"
)

// Service is the registry ledger.
type Service = service.Service

// Handler wires HTTP endpoints to the ledger.
type Handler = handler.Handler

// NewService constructs the ledger with its store and admin account.
func NewService(store service.LedgerStore, admin id.AccountID, opts ...service.Option) (*Service, error) {
	return service.New(store, admin, opts...)
}

// NewHandler constructs the HTTP handler for registry routes.
func NewHandler(s *Service, verifier auth.Verifier, logger *slog.Logger) *Handler {
	return handler.New(s, verifier, logger)
}
