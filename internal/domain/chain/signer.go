// Package chain defines the capability interfaces through which the transfer
// services reach a blockchain. Implementations are supplied by the wallet
// integration layer (or the simulated provider) and chosen once at
// construction; business logic never branches on which one it got.
package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
)

// Tx is a chain-agnostic transaction to sign and submit
type Tx struct {
	Kind      TxKind
	Chain     entities.Chain
	Payload   []byte // protocol message or attestation bundle, per kind
	Recipient string
	Amount    decimal.Decimal
}

// TxKind distinguishes the two protocol transactions
type TxKind string

const (
	TxKindBurn TxKind = "burn"
	TxKindMint TxKind = "mint"
)

// Receipt is the confirmed outcome of a submitted transaction
type Receipt struct {
	TxID          string
	Confirmations int
	// BurnMessage is populated for confirmed burn transactions: the protocol
	// message emitted by the token contract and its digest.
	BurnMessage *BurnMessage
	// MintedAmount is populated for confirmed mint transactions with the
	// credited amount reported by the receipt.
	MintedAmount decimal.Decimal
}

// BurnMessage is the protocol message recovered from a confirmed burn
type BurnMessage struct {
	MessageHash  string
	MessageBytes []byte
	SourceDomain uint32
	DestDomain   uint32
	Recipient    string
	Amount       decimal.Decimal
	Sender       string
}

// Signer is the per-chain wallet capability. Implementations are expected to
// serialize their own nonce handling only within a single call;
// cross-transfer ordering is enforced by SignerLocks.
type Signer interface {
	// Address returns the connected account address on this chain
	Address() string

	// Balance returns the token balance of the connected account
	Balance(ctx context.Context) (decimal.Decimal, error)

	// SignAndSubmit signs the transaction and submits it, returning the tx id
	// once it has been accepted into the mempool
	SignAndSubmit(ctx context.Context, tx Tx) (string, error)

	// WaitForConfirmation blocks until the tx has reached the requested
	// confirmation depth and returns its receipt
	WaitForConfirmation(ctx context.Context, txID string, depth int) (*Receipt, error)
}

// SignerProvider resolves the signer for a chain, or reports that the wallet
// capability for it is not connected
type SignerProvider interface {
	Signer(chain entities.Chain) (Signer, error)
}
