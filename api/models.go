package api

import "github.com/sora-grayscale/splitvault/crypto"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateResourceRequest is the JSON body for POST /resources. Fields
// arrive already sealed; the server never sees plaintext or keys.
type CreateResourceRequest struct {
	ID     string                     `json:"id"`
	Fields map[string]*crypto.Payload `json:"fields"`
}

// ResourceResponse mirrors the stored record: ciphertext, IVs, and (when a
// password is set) the opaque protection artifacts.
type ResourceResponse struct {
	ID                string                     `json:"id"`
	Fields            map[string]*crypto.Payload `json:"fields"`
	PasswordProtected bool                       `json:"password_protected"`
	PasswordSalt      []byte                     `json:"password_salt,omitempty"`
	PasswordProbe     *crypto.Payload            `json:"password_probe,omitempty"`
	PasswordHint      *crypto.Payload            `json:"password_hint,omitempty"`
}

// UpdateFieldsRequest is the JSON body for PUT /resources/{id}/fields.
type UpdateFieldsRequest struct {
	Fields map[string]*crypto.Payload `json:"fields"`
}

// SetProtectionRequest is the JSON body for PUT /resources/{id}/protection.
// Clients build these artifacts locally (salt, probe sealed under the
// combined key, hint sealed under the transport key) and upload only the
// results, usually together with the re-encrypted fields.
type SetProtectionRequest struct {
	Salt   []byte                     `json:"salt"`
	Probe  *crypto.Payload            `json:"probe"`
	Hint   *crypto.Payload            `json:"hint,omitempty"`
	Fields map[string]*crypto.Payload `json:"fields,omitempty"`
}

// TwoFactorStatusResponse is returned from GET /accounts/{id}/2fa.
type TwoFactorStatusResponse struct {
	Enabled              bool `json:"enabled"`
	RemainingBackupCodes int  `json:"remaining_backup_codes,omitempty"`
}

// TwoFactorSetupResponse is returned from POST /accounts/{id}/2fa/setup.
type TwoFactorSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioning_url"`
}

// TwoFactorCodeRequest carries a submitted token or backup code.
type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// TwoFactorEnableResponse is returned once from POST /accounts/{id}/2fa/enable.
type TwoFactorEnableResponse struct {
	BackupCodes []string `json:"backup_codes"`
}
