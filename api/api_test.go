package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sora-grayscale/splitvault/api"
	"github.com/sora-grayscale/splitvault/crypto"
	"github.com/sora-grayscale/splitvault/ratelimit"
	"github.com/sora-grayscale/splitvault/storage/memory"
	"github.com/sora-grayscale/splitvault/twofactor"
	"github.com/sora-grayscale/splitvault/internal/util"
)

const testCronSecret = "test-cron-secret"

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := memory.NewRepository()
	limiter := ratelimit.New()
	serverKey, err := util.NewServerKey()
	require.NoError(t, err)
	keeper, err := twofactor.NewKeeper(serverKey, repo, limiter)
	require.NoError(t, err)

	a := api.New(repo, keeper, limiter,
		api.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		api.WithCronSecret(testCronSecret),
	)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sealedFields(t *testing.T, key []byte, values map[string]string) map[string]*crypto.Payload {
	t.Helper()
	fields := make(map[string]*crypto.Payload, len(values))
	for name, value := range values {
		payload, err := crypto.EncryptString(value, key)
		require.NoError(t, err)
		fields[name] = payload
	}
	return fields
}

func TestResourceLifecycle(t *testing.T) {
	srv := setupServer(t)
	base := srv.URL + "/api/v1"

	key, err := crypto.NewDataKey()
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, base+"/resources", api.CreateResourceRequest{
		ID:     "grp-1",
		Fields: sealedFields(t, key, map[string]string{"name": "Trip to Kyoto"}),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[api.ResourceResponse](t, resp)
	assert.Equal(t, "grp-1", created.ID)
	assert.False(t, created.PasswordProtected)

	// The server returns opaque payloads; only the key holder recovers them.
	resp = doJSON(t, http.MethodGet, base+"/resources/grp-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeBody[api.ResourceResponse](t, resp)
	name, err := crypto.DecryptString(fetched.Fields["name"], key)
	require.NoError(t, err)
	assert.Equal(t, "Trip to Kyoto", name)

	resp = doJSON(t, http.MethodPut, base+"/resources/grp-1/fields", api.UpdateFieldsRequest{
		Fields: sealedFields(t, key, map[string]string{"currency": "JPY"}),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[api.ResourceResponse](t, resp)
	assert.Len(t, updated.Fields, 2, "merge keeps existing fields")

	resp = doJSON(t, http.MethodDelete, base+"/resources/grp-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"/resources/grp-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateResourceValidation(t *testing.T) {
	srv := setupServer(t)
	base := srv.URL + "/api/v1"

	key, err := crypto.NewDataKey()
	require.NoError(t, err)
	fields := sealedFields(t, key, map[string]string{"name": "x"})

	resp := doJSON(t, http.MethodPost, base+"/resources", api.CreateResourceRequest{Fields: fields})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing id")
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/resources", api.CreateResourceRequest{ID: "grp-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing fields")
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/resources", api.CreateResourceRequest{ID: "grp-1", Fields: fields})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/resources", api.CreateResourceRequest{ID: "grp-1", Fields: fields})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "duplicate id")
	resp.Body.Close()
}

func TestSetProtection(t *testing.T) {
	srv := setupServer(t)
	base := srv.URL + "/api/v1"

	transportKey, err := crypto.NewDataKey()
	require.NoError(t, err)
	resp := doJSON(t, http.MethodPost, base+"/resources", api.CreateResourceRequest{
		ID:     "grp-1",
		Fields: sealedFields(t, transportKey, map[string]string{"name": "Trip to Kyoto"}),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Client-side: derive, combine, re-seal. The server only ever sees
	// the resulting artifacts.
	salt, err := crypto.NewSalt()
	require.NoError(t, err)
	passwordKey, err := crypto.DeriveKey("hunter2", salt)
	require.NoError(t, err)
	combined, err := crypto.Combine(transportKey, passwordKey)
	require.NoError(t, err)
	probe, err := crypto.EncryptString("probe", combined)
	require.NoError(t, err)
	hint, err := crypto.EncryptString("the usual", transportKey)
	require.NoError(t, err)

	resp = doJSON(t, http.MethodPut, base+"/resources/grp-1/protection", api.SetProtectionRequest{
		Salt:   salt,
		Probe:  probe,
		Hint:   hint,
		Fields: sealedFields(t, combined, map[string]string{"name": "Trip to Kyoto"}),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	protected := decodeBody[api.ResourceResponse](t, resp)
	assert.True(t, protected.PasswordProtected)
	assert.Equal(t, salt, protected.PasswordSalt)
	require.NotNil(t, protected.PasswordProbe)

	// Round trip through storage still verifies with the combined key.
	got, err := crypto.DecryptString(protected.PasswordProbe, combined)
	require.NoError(t, err)
	assert.Equal(t, "probe", got)

	// The transport key alone no longer opens the fields.
	_, err = crypto.DecryptString(protected.Fields["name"], transportKey)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailure)

	resp = doJSON(t, http.MethodPut, base+"/resources/grp-1/protection", api.SetProtectionRequest{
		Salt:  []byte{1, 2, 3},
		Probe: probe,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "short salt")
	resp.Body.Close()
}

func TestTwoFactorEndpoints(t *testing.T) {
	srv := setupServer(t)
	base := srv.URL + "/api/v1/accounts/alice/2fa"

	resp := doJSON(t, http.MethodGet, base+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[api.TwoFactorStatusResponse](t, resp)
	assert.False(t, status.Enabled)

	resp = doJSON(t, http.MethodPost, base+"/setup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	setup := decodeBody[api.TwoFactorSetupResponse](t, resp)
	require.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.ProvisioningURL, "otpauth://totp/")

	resp = doJSON(t, http.MethodPost, base+"/enable", api.TwoFactorCodeRequest{Code: "000000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "wrong code must not enable")
	resp.Body.Close()

	code, err := twofactor.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)
	resp = doJSON(t, http.MethodPost, base+"/enable", api.TwoFactorCodeRequest{Code: code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	enabled := decodeBody[api.TwoFactorEnableResponse](t, resp)
	assert.Len(t, enabled.BackupCodes, 10)

	resp = doJSON(t, http.MethodGet, base+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decodeBody[api.TwoFactorStatusResponse](t, resp)
	assert.True(t, status.Enabled)
	assert.Equal(t, 10, status.RemainingBackupCodes)

	resp = doJSON(t, http.MethodPost, base+"/verify", api.TwoFactorCodeRequest{Code: enabled.BackupCodes[0]})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/verify", api.TwoFactorCodeRequest{Code: enabled.BackupCodes[0]})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "backup codes are single use")
	resp.Body.Close()

	code, err = twofactor.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)
	resp = doJSON(t, http.MethodPost, base+"/disable", api.TwoFactorCodeRequest{Code: code})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"/", nil)
	status = decodeBody[api.TwoFactorStatusResponse](t, resp)
	assert.False(t, status.Enabled)
}

func TestVerifyRateLimited(t *testing.T) {
	srv := setupServer(t)
	base := srv.URL + "/api/v1/accounts/bob/2fa"

	resp := doJSON(t, http.MethodPost, base+"/setup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	setup := decodeBody[api.TwoFactorSetupResponse](t, resp)

	code, err := twofactor.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)
	resp = doJSON(t, http.MethodPost, base+"/enable", api.TwoFactorCodeRequest{Code: code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < ratelimit.DefaultMaxAttempts; i++ {
		resp = doJSON(t, http.MethodPost, base+"/verify", api.TwoFactorCodeRequest{Code: "000000"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	resp = doJSON(t, http.MethodPost, base+"/verify", api.TwoFactorCodeRequest{Code: "000000"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestCronResetLockouts(t *testing.T) {
	srv := setupServer(t)
	url := srv.URL + "/api/v1/cron/reset-lockouts"

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "missing secret")
	resp.Body.Close()

	req, err = http.NewRequestWithContext(context.Background(), http.MethodPost, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Cron-Secret", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err = http.NewRequestWithContext(context.Background(), http.MethodPost, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Cron-Secret", testCronSecret)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestOpenAPISpecServed(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "openapi:")
}
