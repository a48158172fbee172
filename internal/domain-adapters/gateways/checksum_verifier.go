package gateways

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jurobystricky/autospec/internal/domain/entities"
)

// ChecksumVerifier digests fetched archives with SHA-256.
type ChecksumVerifier struct{}

// NewChecksumVerifier creates a new checksum verifier
func NewChecksumVerifier() *ChecksumVerifier {
	return &ChecksumVerifier{}
}

// CalculateChecksum returns the hex SHA-256 of a file.
func (v *ChecksumVerifier) CalculateChecksum(filePath string) (string, error) {
	//nolint:gosec // G304: File path is a fetched archive
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares a file against an expected digest. The digest may
// carry a "sha256:" prefix and is compared case-insensitively.
func (v *ChecksumVerifier) VerifyChecksum(ctx context.Context, filePath, expectedSum string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	expected := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(expectedSum), "sha256:"))
	if len(expected) != sha256.Size*2 {
		return fmt.Errorf("invalid SHA-256 digest %q", expectedSum)
	}

	actual, err := v.CalculateChecksum(filePath)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", filePath, expected, actual)
	}
	return nil
}

// RecordChecksums fills in the SHA-256 of every archive that exists on disk.
// Skip entries are digested too: they were fetched even if never extracted.
func (v *ChecksumVerifier) RecordChecksums(archives []entities.FetchedArchive) error {
	for i := range archives {
		sum, err := v.CalculateChecksum(archives[i].Path)
		if err != nil {
			return fmt.Errorf("checksum of %s: %w", archives[i].URL, err)
		}
		archives[i].SHA256 = sum
	}
	return nil
}
