// Package gpg verifies detached OpenPGP signatures of upstream source archives.
package gpg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

const (
	maxSignatureSize = 10 * 1024
	maxKeysSize      = 10 * 1024 * 1024
	armoredSigHeader = "-----BEGIN PGP SIGNATURE-----"
)

// DefaultKeyservers are queried in order by ImportKeys.
var DefaultKeyservers = []string{
	"https://keys.openpgp.org",
	"https://keyserver.ubuntu.com",
}

// Verifier holds a keyring of trusted upstream signing keys.
type Verifier struct {
	keyring    openpgp.EntityList
	httpClient *http.Client
	keyservers []string
}

// NewVerifier creates a verifier that downloads keys and signatures with client.
func NewVerifier(client *http.Client) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Verifier{
		httpClient: client,
		keyservers: DefaultKeyservers,
	}
}

// WithKeyservers replaces the keyserver list.
func (v *Verifier) WithKeyservers(servers ...string) *Verifier {
	v.keyservers = servers
	return v
}

// ImportKeys fetches each fingerprint from the first keyserver that has it.
// A served key is only accepted if its fingerprint matches the request.
func (v *Verifier) ImportKeys(ctx context.Context, keyIDs []string) error {
	if len(keyIDs) == 0 {
		return fmt.Errorf("no key IDs provided")
	}

	for _, keyID := range keyIDs {
		keyID = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(keyID), "0x"))
		if keyID == "" {
			continue
		}

		var lastErr error
		imported := false
		for _, server := range v.keyservers {
			keys, err := v.lookup(ctx, server, keyID)
			if err != nil {
				lastErr = err
				continue
			}
			v.keyring = append(v.keyring, keys...)
			imported = true
			break
		}
		if !imported {
			return fmt.Errorf("failed to import key %s from all keyservers: %w", keyID, lastErr)
		}
	}
	return nil
}

func (v *Verifier) lookup(ctx context.Context, server, keyID string) (openpgp.EntityList, error) {
	var lastErr error
	for _, url := range []string{
		fmt.Sprintf("%s/vks/v1/by-fingerprint/%s", server, keyID),
		fmt.Sprintf("%s/pks/lookup?op=get&search=0x%s", server, keyID),
	} {
		body, err := v.get(ctx, url, maxKeysSize)
		if err != nil {
			lastErr = err
			continue
		}
		keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		if matchesFingerprint(keys, keyID) {
			return keys, nil
		}
		lastErr = fmt.Errorf("no keys found matching fingerprint %s", keyID)
	}
	return nil, lastErr
}

// matchesFingerprint accepts a full fingerprint or its 16-character long ID.
func matchesFingerprint(keys openpgp.EntityList, keyID string) bool {
	for _, e := range keys {
		fp := fmt.Sprintf("%X", e.PrimaryKey.Fingerprint)
		if fp == keyID || (len(fp) >= 16 && fp[len(fp)-16:] == keyID) {
			return true
		}
	}
	return false
}

// ImportKeysFromURL imports every key of a published KEYS file.
func (v *Verifier) ImportKeysFromURL(ctx context.Context, keysURL string) error {
	body, err := v.get(ctx, keysURL, maxKeysSize)
	if err != nil {
		return fmt.Errorf("failed to download KEYS file: %w", err)
	}
	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse KEYS file: %w", err)
	}
	return v.add(keys)
}

// ImportKeyFromFile imports an armored or binary public key file.
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath is operator-provided
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}

	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keys, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}
	return v.add(keys)
}

func (v *Verifier) add(keys openpgp.EntityList) error {
	if len(keys) == 0 {
		return errors.New("no keys found")
	}
	v.keyring = append(v.keyring, keys...)
	return nil
}

// VerifySignature downloads a detached signature and checks filePath against it.
func (v *Verifier) VerifySignature(ctx context.Context, filePath, sigURL string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported")
	}
	sig, err := v.get(ctx, sigURL, maxSignatureSize)
	if err != nil {
		return fmt.Errorf("failed to download signature: %w", err)
	}
	return v.verify(filePath, sig)
}

// VerifySignatureFromFile checks filePath against a local detached signature.
func (v *Verifier) VerifySignatureFromFile(filePath, sigPath string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported")
	}
	//nolint:gosec // G304: sigPath is operator-provided
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to open signature file: %w", err)
	}
	return v.verify(filePath, sig)
}

func (v *Verifier) verify(filePath string, sig []byte) error {
	if len(sig) < 10 {
		return fmt.Errorf("signature too small to be a valid OpenPGP signature")
	}

	//nolint:gosec // G304: filePath is a fetched archive
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	if bytes.HasPrefix(bytes.TrimSpace(sig), []byte(armoredSigHeader)) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, f, bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, f, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

func (v *Verifier) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// KeyringSize returns the number of keys loaded.
func (v *Verifier) KeyringSize() int {
	return len(v.keyring)
}
