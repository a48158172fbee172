package gateways

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jurobystricky/autospec/internal/domain/entities"
)

// sha256("hello\n")
const helloSum = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"

func TestChecksumVerifier_CalculateChecksum(t *testing.T) {
	path := writeBytes(t, t.TempDir(), "hello.txt", []byte("hello\n"))

	got, err := NewChecksumVerifier().CalculateChecksum(path)
	if err != nil {
		t.Fatalf("CalculateChecksum() error = %v", err)
	}
	if got != helloSum {
		t.Errorf("CalculateChecksum() = %s, want %s", got, helloSum)
	}
}

func TestChecksumVerifier_VerifyChecksum(t *testing.T) {
	path := writeBytes(t, t.TempDir(), "hello.txt", []byte("hello\n"))
	v := NewChecksumVerifier()

	tests := []struct {
		name     string
		path     string
		expected string
		wantErr  string
	}{
		{"valid", path, helloSum, ""},
		{"prefixed upper case", path, "sha256:" + strings.ToUpper(helloSum), ""},
		{"mismatch", path, strings.Repeat("0", 64), "checksum mismatch"},
		{"malformed digest", path, "abc", "invalid SHA-256"},
		{"missing file", filepath.Join(t.TempDir(), "nope"), helloSum, "failed to open file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyChecksum(context.Background(), tt.path, tt.expected)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("VerifyChecksum() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("VerifyChecksum() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestChecksumVerifier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewChecksumVerifier().VerifyChecksum(ctx, "/dev/null", helloSum); err == nil {
		t.Error("VerifyChecksum() with cancelled context should fail")
	}
}

func TestChecksumVerifier_RecordChecksums(t *testing.T) {
	path := writeBytes(t, t.TempDir(), "hello.txt", []byte("hello\n"))
	archives := []entities.FetchedArchive{{URL: "https://example.com/hello.txt", Path: path}}

	if err := NewChecksumVerifier().RecordChecksums(archives); err != nil {
		t.Fatalf("RecordChecksums() error = %v", err)
	}
	if archives[0].SHA256 != helloSum {
		t.Errorf("SHA256 = %s, want %s", archives[0].SHA256, helloSum)
	}
}
