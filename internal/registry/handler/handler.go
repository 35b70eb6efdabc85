package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"datamarket/internal/registry/models"
	id "datamarket/pkg/domain"
	dErrors "datamarket/pkg/domain-errors"
	"datamarket/pkg/platform/middleware/auth"
	"datamarket/pkg/requestcontext"
)

// Ledger defines the registry operations the handler exposes over HTTP.
type Ledger interface {
	Register(ctx context.Context, caller id.AccountID, contentAddress string, price int64, metadata string) (id.RecordID, error)
	UpdateMetadata(ctx context.Context, caller id.AccountID, recordID id.RecordID, newMetadata string) error
	GrantAccess(ctx context.Context, caller id.AccountID, recordID id.RecordID, beneficiary id.AccountID) error
	Deactivate(ctx context.Context, caller id.AccountID, recordID id.RecordID) error
	SetPlatformFee(ctx context.Context, caller id.AccountID, fee int) error
	GetRecord(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	HasAccess(ctx context.Context, recordID id.RecordID, account id.AccountID) (bool, error)
	ListOwned(ctx context.Context, account id.AccountID) ([]id.RecordID, error)
	ListPurchased(ctx context.Context, account id.AccountID) ([]id.RecordID, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.Record, error)
	FeePercentage(ctx context.Context) (int, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Handler wires registry routes to the ledger service.
type Handler struct {
	logger   *slog.Logger
	ledger   Ledger
	verifier auth.Verifier
}

// New creates a registry Handler.
func New(ledger Ledger, verifier auth.Verifier, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		ledger:   ledger,
		verifier: verifier,
	}
}

// Register mounts the registry routes. Queries are public; mutations require
// an authenticated caller. Owner and admin checks stay in the ledger.
func (h *Handler) Register(r chi.Router) {
	r.Get("/records", h.handleListActive)
	r.Get("/records/{recordID}", h.handleGetRecord)
	r.Get("/records/{recordID}/access/{account}", h.handleHasAccess)
	r.Get("/accounts/{account}/records", h.handleListOwned)
	r.Get("/accounts/{account}/purchases", h.handleListPurchased)
	r.Get("/platform/fee", h.handleGetFee)
	r.Get("/platform/stats", h.handleStats)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.verifier, h.logger))
		r.Post("/records", h.handleRegister)
		r.Put("/records/{recordID}/metadata", h.handleUpdateMetadata)
		r.Post("/records/{recordID}/access", h.handleGrantAccess)
		r.Post("/records/{recordID}/deactivate", h.handleDeactivate)
		r.Put("/platform/fee", h.handleSetFee)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadRequest(ctx, "register", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	recordID, err := h.ledger.Register(ctx, caller, req.ContentAddress, req.Price, req.Metadata)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "record registered",
		"request_id", requestcontext.RequestID(ctx),
		"record_id", recordID,
		"owner", caller,
	)
	writeJSON(w, http.StatusCreated, registerResponse{RecordID: recordID})
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		WriteError(w, err)
		return
	}

	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadRequest(ctx, "update metadata", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.ledger.UpdateMetadata(ctx, requestcontext.Caller(ctx), recordID, req.Metadata); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Updated: true})
}

func (h *Handler) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		WriteError(w, err)
		return
	}

	var req grantAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadRequest(ctx, "grant access", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	beneficiary, err := id.ParseAccountID(req.Beneficiary)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.ledger.GrantAccess(ctx, requestcontext.Caller(ctx), recordID, beneficiary); err != nil {
		WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "access granted",
		"request_id", requestcontext.RequestID(ctx),
		"record_id", recordID,
		"beneficiary", beneficiary,
	)
	writeJSON(w, http.StatusOK, okResponse{Updated: true})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.ledger.Deactivate(ctx, requestcontext.Caller(ctx), recordID); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Updated: true})
}

func (h *Handler) handleSetFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req setFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadRequest(ctx, "set fee", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.ledger.SetPlatformFee(ctx, requestcontext.Caller(ctx), req.FeePercentage); err != nil {
		WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "platform fee changed",
		"request_id", requestcontext.RequestID(ctx),
		"fee_percentage", req.FeePercentage,
	)
	writeJSON(w, http.StatusOK, okResponse{Updated: true})
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		WriteError(w, err)
		return
	}

	record, err := h.ledger.GetRecord(r.Context(), recordID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleHasAccess(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		WriteError(w, err)
		return
	}

	granted, err := h.ledger.HasAccess(r.Context(), recordID, account)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hasAccessResponse{RecordID: recordID, Account: account, HasAccess: granted})
}

func (h *Handler) handleListOwned(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.ledger.ListOwned)
}

func (h *Handler) handleListPurchased(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.ledger.ListPurchased)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, list func(context.Context, id.AccountID) ([]id.RecordID, error)) {
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		WriteError(w, err)
		return
	}

	ids, err := list(r.Context(), account)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Account: account, RecordIDs: ids})
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.ledger.ListActive(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, browseResponse{Records: records})
}

func (h *Handler) handleGetFee(w http.ResponseWriter, r *http.Request) {
	fee, err := h.ledger.FeePercentage(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feeResponse{FeePercentage: fee})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) warnBadRequest(ctx context.Context, operation string, err error) {
	h.logger.WarnContext(ctx, "invalid "+operation+" request",
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
