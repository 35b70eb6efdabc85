package handler

import (
	"encoding/json"
	"net/http"

	"datamarket/internal/registry/models"
	id "datamarket/pkg/domain"
	dErrors "datamarket/pkg/domain-errors"
)

type registerResponse struct {
	RecordID id.RecordID `json:"record_id"`
}

type okResponse struct {
	Updated bool `json:"updated"`
}

type hasAccessResponse struct {
	RecordID  id.RecordID  `json:"record_id"`
	Account   id.AccountID `json:"account"`
	HasAccess bool         `json:"has_access"`
}

type listResponse struct {
	Account   id.AccountID  `json:"account"`
	RecordIDs []id.RecordID `json:"record_ids"`
}

type browseResponse struct {
	Records []*models.Record `json:"records"`
}

type feeResponse struct {
	FeePercentage int `json:"fee_percentage"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps a domain error code to an HTTP status and writes the
// standard error body. The code set is closed, so the default arm only
// catches genuine internal failures.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	var status int
	switch code {
	case dErrors.CodeUnauthorized:
		status = http.StatusForbidden
	case dErrors.CodeNotFound:
		status = http.StatusNotFound
	case dErrors.CodeInvalidPrice, dErrors.CodeInvalidFee, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		status = http.StatusUnprocessableEntity
	case dErrors.CodeBadRequest:
		status = http.StatusBadRequest
	case dErrors.CodeConflict:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, errorResponse{
		Error:            string(code),
		ErrorDescription: dErrors.MessageOf(err),
	})
}
