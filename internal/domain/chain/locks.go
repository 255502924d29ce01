package chain

import (
	"sync"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
)

// SignerLocks serializes signer access per (chain, account). Chains order
// transactions per account by nonce, so two transfers sharing a signer must
// not submit concurrently.
type SignerLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

type lockKey struct {
	chain   entities.Chain
	account string
}

// NewSignerLocks creates an empty lock set
func NewSignerLocks() *SignerLocks {
	return &SignerLocks{locks: make(map[lockKey]*sync.Mutex)}
}

// Lock acquires the lock for the (chain, account) pair and returns its
// release function
func (s *SignerLocks) Lock(chain entities.Chain, account string) func() {
	s.mu.Lock()
	key := lockKey{chain: chain, account: account}
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
