package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sora-grayscale/splitvault/crypto"
	"github.com/sora-grayscale/splitvault/password"
	"github.com/sora-grayscale/splitvault/storage"
)

// CreateResource handles POST /resources. The body carries only sealed
// payloads; a request that somehow included key material would be
// indistinguishable from ciphertext and is stored as opaque bytes anyway.
func (a *API) CreateResource(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateResourceRequest](w, r)
	if !ok {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "at least one field is required")
		return
	}

	if _, err := a.repo.GetResource(req.ID); err == nil {
		writeError(w, http.StatusConflict, "resource already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		mapError(w, err)
		return
	}

	now := time.Now().UTC()
	record := &storage.ResourceRecord{
		ID:        req.ID,
		Fields:    req.Fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.repo.PutResource(record); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditResourceCreated, r, slog.String("resource_id", req.ID))
	writeJSON(w, http.StatusCreated, resourceResponse(record))
}

// GetResource handles GET /resources/{resourceID}.
func (a *API) GetResource(w http.ResponseWriter, r *http.Request) {
	record, err := a.repo.GetResource(chi.URLParam(r, "resourceID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resourceResponse(record))
}

// UpdateFields handles PUT /resources/{resourceID}/fields. Existing fields
// not named in the request are kept.
func (a *API) UpdateFields(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UpdateFieldsRequest](w, r)
	if !ok {
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "at least one field is required")
		return
	}

	record, err := a.repo.GetResource(chi.URLParam(r, "resourceID"))
	if err != nil {
		mapError(w, err)
		return
	}
	for name, payload := range req.Fields {
		record.Fields[name] = payload
	}
	record.UpdatedAt = time.Now().UTC()
	if err := a.repo.PutResource(record); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resourceResponse(record))
}

// SetProtection handles PUT /resources/{resourceID}/protection. The fields
// in the request are the resource's payloads re-sealed under the new
// combined key; storing them atomically with the artifacts keeps probe and
// fields consistent.
func (a *API) SetProtection(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SetProtectionRequest](w, r)
	if !ok {
		return
	}
	if len(req.Salt) != crypto.SaltSize {
		writeError(w, http.StatusBadRequest, "salt has the wrong length")
		return
	}
	if req.Probe == nil {
		writeError(w, http.StatusBadRequest, "probe is required")
		return
	}

	resourceID := chi.URLParam(r, "resourceID")
	record, err := a.repo.GetResource(resourceID)
	if err != nil {
		mapError(w, err)
		return
	}

	record.Protection = &password.Protection{
		Salt:  req.Salt,
		Probe: req.Probe,
		Hint:  req.Hint,
	}
	for name, payload := range req.Fields {
		record.Fields[name] = payload
	}
	record.UpdatedAt = time.Now().UTC()
	if err := a.repo.PutResource(record); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditProtectionSet, r, slog.String("resource_id", resourceID))
	writeJSON(w, http.StatusOK, resourceResponse(record))
}

// DeleteResource handles DELETE /resources/{resourceID}.
func (a *API) DeleteResource(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")
	if err := a.repo.DeleteResource(resourceID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditResourceDeleted, r, slog.String("resource_id", resourceID))
	w.WriteHeader(http.StatusNoContent)
}

func resourceResponse(record *storage.ResourceRecord) ResourceResponse {
	resp := ResourceResponse{
		ID:                record.ID,
		Fields:            record.Fields,
		PasswordProtected: record.PasswordProtected(),
	}
	if record.Protection != nil {
		resp.PasswordSalt = record.Protection.Salt
		resp.PasswordProbe = record.Protection.Probe
		resp.PasswordHint = record.Protection.Hint
	}
	return resp
}
