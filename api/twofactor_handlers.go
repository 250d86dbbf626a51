package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sora-grayscale/splitvault/ratelimit"
	"github.com/sora-grayscale/splitvault/twofactor"
)

// TwoFactorStatus handles GET /accounts/{accountID}/2fa.
func (a *API) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	enabled, err := a.keeper.Enabled(accountID)
	if err != nil {
		mapError(w, err)
		return
	}
	resp := TwoFactorStatusResponse{Enabled: enabled}
	if enabled {
		remaining, err := a.keeper.RemainingBackupCodes(accountID)
		if err != nil {
			mapError(w, err)
			return
		}
		resp.RemainingBackupCodes = remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetupTwoFactor handles POST /accounts/{accountID}/2fa/setup.
func (a *API) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	secret, provisioningURL, err := a.keeper.Setup(accountID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditTwoFactorSetup, r, slog.String("account_id", accountID))
	writeJSON(w, http.StatusOK, TwoFactorSetupResponse{
		Secret:          secret,
		ProvisioningURL: provisioningURL,
	})
}

// EnableTwoFactor handles POST /accounts/{accountID}/2fa/enable. The
// backup codes in the response are shown exactly once.
func (a *API) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[TwoFactorCodeRequest](w, r)
	if !ok {
		return
	}
	accountID := chi.URLParam(r, "accountID")

	codes, err := a.keeper.Enable(accountID, req.Code)
	if err != nil {
		if errors.Is(err, twofactor.ErrVerificationFailed) {
			a.audit.logFailure(AuditTwoFactorFailed, r, "enable", slog.String("account_id", accountID))
		}
		mapError(w, err)
		return
	}
	a.audit.log(AuditTwoFactorEnabled, r, slog.String("account_id", accountID))
	writeJSON(w, http.StatusOK, TwoFactorEnableResponse{BackupCodes: codes})
}

// VerifyTwoFactor handles POST /accounts/{accountID}/2fa/verify.
func (a *API) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[TwoFactorCodeRequest](w, r)
	if !ok {
		return
	}
	accountID := chi.URLParam(r, "accountID")

	if err := a.keeper.Verify(accountID, req.Code); err != nil {
		var limited *ratelimit.LimitedError
		switch {
		case errors.As(err, &limited):
			a.audit.logFailure(AuditTwoFactorRateLimited, r, "verify", slog.String("account_id", accountID))
		case errors.Is(err, twofactor.ErrVerificationFailed):
			a.audit.logFailure(AuditTwoFactorFailed, r, "verify", slog.String("account_id", accountID))
		}
		mapError(w, err)
		return
	}
	a.audit.log(AuditTwoFactorVerified, r, slog.String("account_id", accountID))
	w.WriteHeader(http.StatusNoContent)
}

// DisableTwoFactor handles POST /accounts/{accountID}/2fa/disable.
func (a *API) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[TwoFactorCodeRequest](w, r)
	if !ok {
		return
	}
	accountID := chi.URLParam(r, "accountID")

	if err := a.keeper.Disable(accountID, req.Code); err != nil {
		if errors.Is(err, twofactor.ErrVerificationFailed) {
			a.audit.logFailure(AuditTwoFactorFailed, r, "disable", slog.String("account_id", accountID))
		}
		mapError(w, err)
		return
	}
	a.audit.log(AuditTwoFactorDisabled, r, slog.String("account_id", accountID))
	w.WriteHeader(http.StatusNoContent)
}
