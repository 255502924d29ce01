package simchain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stablebridge/bridge_service/internal/domain/chain"
	"github.com/stablebridge/bridge_service/internal/domain/entities"
)

// Signer is a deterministic in-process wallet for one chain. Tx ids and
// message hashes are derived from the submitted payload, so a re-confirmed
// tx always yields the same receipt.
type Signer struct {
	chain   entities.Chain
	address string
	latency time.Duration

	mu          sync.Mutex
	balance     decimal.Decimal
	nonce       uint64
	submitted   map[string]chain.Tx
	submitErr   error
	confirmErr  error
	confirmHang bool
}

// NewSigner creates a signer with the given starting balance
func NewSigner(c entities.Chain, address string, balance decimal.Decimal) *Signer {
	return &Signer{
		chain:     c,
		address:   address,
		balance:   balance,
		submitted: make(map[string]chain.Tx),
	}
}

// Address returns the connected account address
func (s *Signer) Address() string {
	return s.address
}

// Balance returns the simulated token balance
func (s *Signer) Balance(_ context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

// SignAndSubmit records the transaction and returns its deterministic tx id
func (s *Signer) SignAndSubmit(ctx context.Context, tx chain.Tx) (string, error) {
	if err := s.sleep(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitErr != nil {
		err := s.submitErr
		s.submitErr = nil
		return "", err
	}

	s.nonce++
	txID := Digest([]byte(fmt.Sprintf("%s|%s|%d|%s", s.chain, tx.Kind, s.nonce, tx.Payload)))
	s.submitted[txID] = tx

	switch tx.Kind {
	case chain.TxKindBurn:
		s.balance = s.balance.Sub(tx.Amount)
	case chain.TxKindMint:
		s.balance = s.balance.Add(tx.Amount)
	}

	return txID, nil
}

// WaitForConfirmation returns the receipt for a previously submitted tx
func (s *Signer) WaitForConfirmation(ctx context.Context, txID string, depth int) (*chain.Receipt, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.confirmHang {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.confirmErr != nil {
		err := s.confirmErr
		s.confirmErr = nil
		s.mu.Unlock()
		return nil, err
	}
	tx, ok := s.submitted[txID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown transaction %s on %s", txID, s.chain)
	}

	receipt := &chain.Receipt{TxID: txID, Confirmations: depth}
	switch tx.Kind {
	case chain.TxKindBurn:
		msg, err := decodeBurnPayload(tx.Payload)
		if err != nil {
			return nil, err
		}
		receipt.BurnMessage = msg
	case chain.TxKindMint:
		receipt.MintedAmount = tx.Amount
	}
	return receipt, nil
}

// SetBalance replaces the simulated balance
func (s *Signer) SetBalance(balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

// FailNextSubmit makes the next SignAndSubmit return err
func (s *Signer) FailNextSubmit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitErr = err
}

// FailNextConfirm makes the next WaitForConfirmation return err
func (s *Signer) FailNextConfirm(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmErr = err
}

// HangConfirmations makes WaitForConfirmation block until its context ends,
// simulating a chain that never reaches the requested depth
func (s *Signer) HangConfirmations(hang bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmHang = hang
}

// SetLatency adds a fixed delay to every signer call
func (s *Signer) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

func (s *Signer) sleep(ctx context.Context) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodeBurnPayload recovers the protocol message the token contract would
// emit for this burn. The payload layout is
// sourceDomain|destDomain|recipient|amount|sender.
func decodeBurnPayload(payload []byte) (*chain.BurnMessage, error) {
	parts := strings.SplitN(string(payload), "|", 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("malformed burn payload: %q", payload)
	}

	var sourceDomain, destDomain uint32
	if _, err := fmt.Sscanf(parts[0], "%d", &sourceDomain); err != nil {
		return nil, fmt.Errorf("malformed source domain: %w", err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &destDomain); err != nil {
		return nil, fmt.Errorf("malformed destination domain: %w", err)
	}
	amount, err := decimal.NewFromString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("malformed amount: %w", err)
	}

	return &chain.BurnMessage{
		MessageHash:  Digest(payload),
		MessageBytes: payload,
		SourceDomain: sourceDomain,
		DestDomain:   destDomain,
		Recipient:    parts[2],
		Amount:       amount,
		Sender:       parts[4],
	}, nil
}
