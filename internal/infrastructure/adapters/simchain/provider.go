// Package simchain provides a deterministic in-process implementation of the
// chain signer capability for local development and tests. Hashing is
// sha256, so the same payload always yields the same tx id and message hash
// across restarts.
package simchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/stablebridge/bridge_service/internal/domain/chain"
	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

// Digest is the simulated protocol digest: 0x-prefixed sha256 hex. It is
// wired into the services as the chain.MessageHasher.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return "0x" + hex.EncodeToString(sum[:])
}

// compile-time check that Digest satisfies the hasher contract
var _ chain.MessageHasher = Digest

// Provider holds one simulated signer per chain
type Provider struct {
	mu      sync.RWMutex
	signers map[entities.Chain]*Signer
}

// NewProvider creates an empty provider; register signers with Connect
func NewProvider() *Provider {
	return &Provider{signers: make(map[entities.Chain]*Signer)}
}

// Connect registers the signer for a chain, replacing any previous one
func (p *Provider) Connect(c entities.Chain, s *Signer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signers[c] = s
}

// Disconnect removes the chain's signer, simulating a dropped wallet
func (p *Provider) Disconnect(c entities.Chain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.signers, c)
}

// Signer resolves the chain's signer
func (p *Provider) Signer(c entities.Chain) (chain.Signer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.signers[c]
	if !ok {
		return nil, fmt.Errorf("%w: no signer for chain %s", apperrors.ErrWalletCapability, c)
	}
	return s, nil
}

// SimSigner returns the concrete simulated signer for test manipulation
func (p *Provider) SimSigner(c entities.Chain) (*Signer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.signers[c]
	return s, ok
}
