package twofactor

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/sora-grayscale/splitvault/crypto"
	"github.com/sora-grayscale/splitvault/internal/util"
	"github.com/sora-grayscale/splitvault/ratelimit"
	"github.com/sora-grayscale/splitvault/storage"
)

var (
	// ErrVerificationFailed covers every rejected token or backup code.
	// Expired, wrong, or already consumed all look the same to the caller.
	ErrVerificationFailed = errors.New("two-factor verification failed")
	// ErrNotConfigured means Setup has not been run for the account.
	ErrNotConfigured = errors.New("two-factor not configured")
	// ErrAlreadyEnabled means Enable was called twice.
	ErrAlreadyEnabled = errors.New("two-factor already enabled")
)

const (
	aadPurposeSecret      = "totp-secret"
	aadPurposeBackupCodes = "backup-codes"
)

// Keeper owns the second-factor lifecycle. All envelopes are sealed under
// a single operator-provisioned 256-bit key held in a memguard enclave;
// user passwords and resource keys never enter this subsystem.
type Keeper struct {
	// mu serializes read-modify-write of per-account records, so a backup
	// code can be consumed atomically with the verification response.
	mu        sync.Mutex
	serverKey *memguard.Enclave
	repo      storage.Repository
	limiter   *ratelimit.Limiter
	issuer    string
	now       func() time.Time
}

// KeeperOption configures a Keeper.
type KeeperOption func(*Keeper)

// WithIssuer sets the issuer label used in provisioning URLs.
func WithIssuer(issuer string) KeeperOption {
	return func(k *Keeper) {
		k.issuer = issuer
	}
}

// WithKeeperClock substitutes the time source, for deterministic tests.
func WithKeeperClock(now func() time.Time) KeeperOption {
	return func(k *Keeper) {
		k.now = now
	}
}

// NewKeeper creates a Keeper. serverKey must be the operator's 256-bit key
// from deployment configuration; it is moved into an enclave and the
// caller's slice is wiped.
func NewKeeper(serverKey []byte, repo storage.Repository, limiter *ratelimit.Limiter, opts ...KeeperOption) (*Keeper, error) {
	if len(serverKey) != util.ServerKeySize {
		return nil, fmt.Errorf("%w: server key is %d bytes, want %d", crypto.ErrInvalidKeyFormat, len(serverKey), util.ServerKeySize)
	}
	k := &Keeper{
		serverKey: memguard.NewEnclave(serverKey),
		repo:      repo,
		limiter:   limiter,
		issuer:    "splitvault",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Setup generates a fresh TOTP secret for the account and stores it sealed
// but not yet enabled. Re-running Setup before Enable replaces the pending
// secret. Returns the secret and its provisioning URL for the client to
// render once.
func (k *Keeper) Setup(accountID string) (secret, provisioningURL string, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if record, err := k.repo.GetTwoFactor(accountID); err == nil && record.Enabled {
		return "", "", ErrAlreadyEnabled
	}

	secret, err = GenerateSecret()
	if err != nil {
		return "", "", fmt.Errorf("generating secret: %w", err)
	}
	sealed, err := k.seal([]byte(secret), accountID, aadPurposeSecret)
	if err != nil {
		return "", "", err
	}

	now := k.now().UTC()
	record := &storage.TwoFactorRecord{
		AccountID: accountID,
		Secret:    sealed,
		Enabled:   false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := k.repo.PutTwoFactor(record); err != nil {
		return "", "", fmt.Errorf("storing two-factor record: %w", err)
	}
	return secret, ProvisioningURL(k.issuer, accountID, secret), nil
}

// Enable turns the pending secret on after one successful verification
// round-trip, and issues the single-use backup codes. The plaintext codes
// are returned exactly once; only their sealed form is kept.
func (k *Keeper) Enable(accountID, code string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	record, err := k.repo.GetTwoFactor(accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	if record.Enabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := k.open(record.Secret, accountID, aadPurposeSecret)
	if err != nil {
		return nil, err
	}
	if !VerifyCode(string(secret), code, k.now()) {
		return nil, ErrVerificationFailed
	}

	codes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generating backup codes: %w", err)
	}
	sealedCodes, err := k.sealCodes(codes, accountID)
	if err != nil {
		return nil, err
	}

	record.BackupCodes = sealedCodes
	record.Enabled = true
	record.UpdatedAt = k.now().UTC()
	if err := k.repo.PutTwoFactor(record); err != nil {
		return nil, fmt.Errorf("storing two-factor record: %w", err)
	}

	display := make([]string, len(codes))
	for i, c := range codes {
		display[i] = formatBackupCode(c)
	}
	return display, nil
}

// Verify checks a login-time token: first as a TOTP code, then as a backup
// code. A matched backup code is removed from the sealed list in the same
// step that produces the success. Attempts are rate-limited per account.
func (k *Keeper) Verify(accountID, code string) error {
	if status := k.limiter.Check(ratelimit.OpTwoFactorVerify, accountID); !status.Allowed {
		return &ratelimit.LimitedError{RetryAfter: status.RetryAfter}
	}

	err := k.verifyAndConsume(accountID, code)
	if err != nil {
		if errors.Is(err, ErrVerificationFailed) {
			k.limiter.RecordFailure(ratelimit.OpTwoFactorVerify, accountID)
		}
		return err
	}
	k.limiter.RecordSuccess(ratelimit.OpTwoFactorVerify, accountID)
	return nil
}

func (k *Keeper) verifyAndConsume(accountID, code string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	record, err := k.repo.GetTwoFactor(accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotConfigured
		}
		return err
	}
	if !record.Enabled {
		return ErrNotConfigured
	}

	secret, err := k.open(record.Secret, accountID, aadPurposeSecret)
	if err != nil {
		return err
	}
	if VerifyCode(string(secret), code, k.now()) {
		return nil
	}

	// Not a valid token; try the backup codes.
	if record.BackupCodes == nil {
		return ErrVerificationFailed
	}
	codes, err := k.openCodes(record.BackupCodes, accountID)
	if err != nil {
		return err
	}
	idx, found := matchBackupCode(codes, code)
	if !found {
		return ErrVerificationFailed
	}

	// Consume the matched code and rewrite the sealed list before
	// reporting success.
	remaining := append(append([]string(nil), codes[:idx]...), codes[idx+1:]...)
	sealedCodes, err := k.sealCodes(remaining, accountID)
	if err != nil {
		return err
	}
	record.BackupCodes = sealedCodes
	record.UpdatedAt = k.now().UTC()
	if err := k.repo.PutTwoFactor(record); err != nil {
		return fmt.Errorf("storing two-factor record: %w", err)
	}
	return nil
}

// Disable verifies one more token and then destroys the account's second
// factor. Disable attempts are rate-limited on their own bucket.
func (k *Keeper) Disable(accountID, code string) error {
	if status := k.limiter.Check(ratelimit.OpTwoFactorDisable, accountID); !status.Allowed {
		return &ratelimit.LimitedError{RetryAfter: status.RetryAfter}
	}

	if err := k.verifyAndConsume(accountID, code); err != nil {
		if errors.Is(err, ErrVerificationFailed) {
			k.limiter.RecordFailure(ratelimit.OpTwoFactorDisable, accountID)
		}
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.repo.DeleteTwoFactor(accountID); err != nil {
		return fmt.Errorf("deleting two-factor record: %w", err)
	}
	k.limiter.RecordSuccess(ratelimit.OpTwoFactorDisable, accountID)
	return nil
}

// Enabled reports whether the account has an active second factor.
func (k *Keeper) Enabled(accountID string) (bool, error) {
	record, err := k.repo.GetTwoFactor(accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.Enabled, nil
}

// RemainingBackupCodes reports how many single-use codes are left.
func (k *Keeper) RemainingBackupCodes(accountID string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	record, err := k.repo.GetTwoFactor(accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrNotConfigured
		}
		return 0, err
	}
	if record.BackupCodes == nil {
		return 0, nil
	}
	codes, err := k.openCodes(record.BackupCodes, accountID)
	if err != nil {
		return 0, err
	}
	return len(codes), nil
}

func (k *Keeper) seal(plaintext []byte, accountID, purpose string) (*crypto.Payload, error) {
	buf, err := k.serverKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening server key: %w", err)
	}
	defer buf.Destroy()

	sealed, err := util.EncryptAESWithAAD(plaintext, buf.Bytes(), envelopeAAD(accountID, purpose))
	if err != nil {
		return nil, fmt.Errorf("sealing %s: %w", purpose, err)
	}
	return &crypto.Payload{
		IV:         sealed[:util.GCMNonceSize],
		Ciphertext: sealed[util.GCMNonceSize:],
	}, nil
}

func (k *Keeper) open(payload *crypto.Payload, accountID, purpose string) ([]byte, error) {
	if payload == nil {
		return nil, crypto.ErrAuthenticationFailure
	}
	buf, err := k.serverKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening server key: %w", err)
	}
	defer buf.Destroy()

	sealed := make([]byte, len(payload.IV)+len(payload.Ciphertext))
	copy(sealed, payload.IV)
	copy(sealed[len(payload.IV):], payload.Ciphertext)

	plaintext, err := util.DecryptAESWithAAD(sealed, buf.Bytes(), envelopeAAD(accountID, purpose))
	if err != nil {
		return nil, crypto.ErrAuthenticationFailure
	}
	return plaintext, nil
}

func (k *Keeper) sealCodes(codes []string, accountID string) (*crypto.Payload, error) {
	data, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("marshalling backup codes: %w", err)
	}
	return k.seal(data, accountID, aadPurposeBackupCodes)
}

func (k *Keeper) openCodes(payload *crypto.Payload, accountID string) ([]string, error) {
	data, err := k.open(payload, accountID, aadPurposeBackupCodes)
	if err != nil {
		return nil, err
	}
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, fmt.Errorf("%w: backup code list", crypto.ErrDecodingFailure)
	}
	return codes, nil
}

// envelopeAAD binds an envelope to its account and purpose, so a sealed
// secret can't be replayed for another account or slot.
func envelopeAAD(accountID, purpose string) []byte {
	var aad []byte
	for _, part := range []string{accountID, purpose} {
		l := make([]byte, 4)
		binary.BigEndian.PutUint32(l, uint32(len(part)))
		aad = append(aad, l...)
		aad = append(aad, part...)
	}
	return aad
}
