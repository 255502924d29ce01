package iris

import "context"

// AuthorityClient defines the attestation authority query surface. The
// authority is polled, never pushed; every call is a read of authority state.
type AuthorityClient interface {
	// GetAttestation fetches the signing status for a message hash
	GetAttestation(ctx context.Context, messageHash string) (*AttestationStatus, error)
}

// Ensure Client implements AuthorityClient interface
var _ AuthorityClient = (*Client)(nil)
