package gateways

import "context"

// ChecksumCalculator digests fetched archives.
type ChecksumCalculator interface {
	CalculateChecksum(filePath string) (string, error)
}

// SignatureVerifier checks detached OpenPGP signatures of fetched archives.
type SignatureVerifier interface {
	// VerifyGPGSignature downloads sigURL and checks it against filePath.
	VerifyGPGSignature(ctx context.Context, filePath, sigURL string) error

	// VerifyGPGSignatureFromFile checks a local signature against filePath.
	VerifyGPGSignatureFromFile(filePath, sigPath string) error
}
