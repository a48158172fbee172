package gateways

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/external-adapters/gpg"
)

// GPGVerifier checks upstream signatures against the keys named in the tool
// configuration.
type GPGVerifier struct {
	verifier *gpg.Verifier
	cfg      entities.GPGConfig
	loaded   bool
}

// NewGPGVerifier creates a verifier; keys are imported on first use.
func NewGPGVerifier(cfg entities.GPGConfig, client *http.Client) *GPGVerifier {
	return &GPGVerifier{
		verifier: gpg.NewVerifier(client),
		cfg:      cfg,
	}
}

// LoadKeys imports the configured key file, KEYS URL and key IDs, in that order.
func (g *GPGVerifier) LoadKeys(ctx context.Context) error {
	if g.loaded {
		return nil
	}
	if !g.cfg.HasKeys() {
		return fmt.Errorf("no GPG keys configured")
	}
	if g.cfg.KeyFile != "" {
		if err := g.verifier.ImportKeyFromFile(g.cfg.KeyFile); err != nil {
			return fmt.Errorf("failed to import GPG key from file: %w", err)
		}
	}
	if g.cfg.KeysURL != "" {
		if err := g.verifier.ImportKeysFromURL(ctx, g.cfg.KeysURL); err != nil {
			return fmt.Errorf("failed to import GPG keys from URL: %w", err)
		}
	}
	if len(g.cfg.KeyIDs) > 0 {
		if err := g.verifier.ImportKeys(ctx, g.cfg.KeyIDs); err != nil {
			return fmt.Errorf("failed to import GPG keys: %w", err)
		}
	}
	g.loaded = true
	return nil
}

// VerifyGPGSignature verifies a detached GPG signature downloaded from a URL
func (g *GPGVerifier) VerifyGPGSignature(ctx context.Context, filePath, sigURL string) error {
	if err := g.LoadKeys(ctx); err != nil {
		return err
	}
	if err := g.verifier.VerifySignature(ctx, filePath, sigURL); err != nil {
		return fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return nil
}

// VerifyGPGSignatureFromFile verifies a detached GPG signature from a local file
func (g *GPGVerifier) VerifyGPGSignatureFromFile(filePath, sigPath string) error {
	if err := g.LoadKeys(context.Background()); err != nil {
		return err
	}
	if err := g.verifier.VerifySignatureFromFile(filePath, sigPath); err != nil {
		return fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return nil
}

// KeyringSize returns the number of keys loaded
func (g *GPGVerifier) KeyringSize() int {
	return g.verifier.KeyringSize()
}
