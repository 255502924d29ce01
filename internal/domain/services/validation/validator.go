// Package validation runs pre-flight checks on transfer requests. Validation
// is pure: no network or chain interaction, failures are synchronous and
// side-effect free.
package validation

import (
	"fmt"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
	"github.com/stablebridge/bridge_service/internal/domain/services/registry"
)

// Validator checks transfer requests against the chain registry
type Validator struct {
	registry *registry.Registry
}

// NewValidator creates a validator backed by the given registry
func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// Validate checks, in order: direction support, amount bounds, recipient
// format. The first failure wins and is returned as a non-retryable
// DomainError carrying the matching kind.
func (v *Validator) Validate(req entities.TransferRequest) error {
	route, ok := v.registry.Route(req.SourceChain, req.DestinationChain)
	if !ok {
		return apperrors.InvalidRequest(entities.ErrKindUnsupportedDirection,
			fmt.Sprintf("direction %s->%s is not supported", req.SourceChain, req.DestinationChain))
	}

	if req.Amount.LessThan(route.MinAmount) {
		return apperrors.InvalidRequest(entities.ErrKindAmountBelowMinimum,
			fmt.Sprintf("amount %s below minimum %s", req.Amount, route.MinAmount))
	}
	if req.Amount.GreaterThan(route.MaxAmount) {
		return apperrors.InvalidRequest(entities.ErrKindAmountAboveMaximum,
			fmt.Sprintf("amount %s above maximum %s", req.Amount, route.MaxAmount))
	}

	dest, ok := v.registry.Descriptor(req.DestinationChain)
	if !ok {
		// Route existence implies the descriptor exists; kept as a guard.
		return apperrors.InvalidRequest(entities.ErrKindUnsupportedDirection,
			fmt.Sprintf("unknown destination chain %s", req.DestinationChain))
	}
	if !dest.ValidAddress(req.Recipient) {
		return apperrors.InvalidRequest(entities.ErrKindMalformedRecipient,
			fmt.Sprintf("recipient %q is not a valid %s address", req.Recipient, req.DestinationChain))
	}

	return nil
}
