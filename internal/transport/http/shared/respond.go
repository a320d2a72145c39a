// Package shared holds the response helpers every handler uses, so error
// envelopes and tenant resolution stay uniform across the API.
package shared

import (
	"encoding/json"
	"net/http"

	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
)

const tenantHeader = "X-Tenant-ID"

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": dErrors.MessageOf(err),
	})
}

// TenantFrom resolves the caller's tenant from the X-Tenant-ID header.
func TenantFrom(r *http.Request) (id.TenantID, error) {
	raw := r.Header.Get(tenantHeader)
	if raw == "" {
		return id.TenantID{}, dErrors.New(dErrors.CodeBadRequest, "missing "+tenantHeader+" header")
	}
	tenant, err := id.ParseTenantID(raw)
	if err != nil {
		return id.TenantID{}, dErrors.New(dErrors.CodeBadRequest, "invalid "+tenantHeader+" header")
	}
	return tenant, nil
}
