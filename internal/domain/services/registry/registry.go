// Package registry holds the static directory of supported chains and
// transfer directions. It is built once at startup from configuration and is
// read-only afterwards.
package registry

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	"github.com/stablebridge/bridge_service/internal/infrastructure/config"
)

// Route is one supported transfer direction with its amount bounds
type Route struct {
	Source      entities.Chain
	Destination entities.Chain
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
}

// Registry is the chain and route directory
type Registry struct {
	descriptors map[entities.Chain]entities.ChainDescriptor
	routes      map[routeKey]Route
}

type routeKey struct {
	source entities.Chain
	dest   entities.Chain
}

// New builds a registry from configuration. Directions are asymmetric: a
// route for source->dest does not imply dest->source.
func New(chains []config.ChainConfig, routes []config.RouteConfig) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[entities.Chain]entities.ChainDescriptor),
		routes:      make(map[routeKey]Route),
	}

	for _, cc := range chains {
		chain := entities.Chain(cc.Name)
		if _, exists := r.descriptors[chain]; exists {
			return nil, fmt.Errorf("duplicate chain %q", cc.Name)
		}
		role := entities.ChainRole(cc.Role)
		switch role {
		case entities.ChainRoleSource, entities.ChainRoleDestination, entities.ChainRoleBoth:
		default:
			return nil, fmt.Errorf("chain %q: unknown role %q", cc.Name, cc.Role)
		}
		if cc.Confirmations <= 0 {
			return nil, fmt.Errorf("chain %q: confirmations must be positive", cc.Name)
		}
		if cc.AddressHexLen <= 0 {
			return nil, fmt.Errorf("chain %q: address_hex_len must be positive", cc.Name)
		}
		r.descriptors[chain] = entities.ChainDescriptor{
			Chain:         chain,
			Role:          role,
			TokenContract: cc.TokenContract,
			Confirmations: cc.Confirmations,
			Domain:        cc.Domain,
			AddressPrefix: cc.AddressPrefix,
			AddressHexLen: cc.AddressHexLen,
		}
	}

	for _, rc := range routes {
		source := entities.Chain(rc.Source)
		dest := entities.Chain(rc.Destination)
		src, ok := r.descriptors[source]
		if !ok {
			return nil, fmt.Errorf("route %s->%s: unknown source chain", rc.Source, rc.Destination)
		}
		dst, ok := r.descriptors[dest]
		if !ok {
			return nil, fmt.Errorf("route %s->%s: unknown destination chain", rc.Source, rc.Destination)
		}
		if !src.Role.CanBurn() {
			return nil, fmt.Errorf("route %s->%s: %s cannot act as source", rc.Source, rc.Destination, rc.Source)
		}
		if !dst.Role.CanMint() {
			return nil, fmt.Errorf("route %s->%s: %s cannot act as destination", rc.Source, rc.Destination, rc.Destination)
		}
		minAmt, err := decimal.NewFromString(rc.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("route %s->%s: bad min_amount: %w", rc.Source, rc.Destination, err)
		}
		maxAmt, err := decimal.NewFromString(rc.MaxAmount)
		if err != nil {
			return nil, fmt.Errorf("route %s->%s: bad max_amount: %w", rc.Source, rc.Destination, err)
		}
		if maxAmt.LessThan(minAmt) {
			return nil, fmt.Errorf("route %s->%s: max_amount below min_amount", rc.Source, rc.Destination)
		}
		r.routes[routeKey{source: source, dest: dest}] = Route{
			Source:      source,
			Destination: dest,
			MinAmount:   minAmt,
			MaxAmount:   maxAmt,
		}
	}

	return r, nil
}

// Descriptor returns the descriptor for a chain
func (r *Registry) Descriptor(chain entities.Chain) (entities.ChainDescriptor, bool) {
	d, ok := r.descriptors[chain]
	return d, ok
}

// Route returns the route for a direction, if supported
func (r *Registry) Route(source, dest entities.Chain) (Route, bool) {
	rt, ok := r.routes[routeKey{source: source, dest: dest}]
	return rt, ok
}

// SupportsDirection reports whether source->dest transfers are configured
func (r *Registry) SupportsDirection(source, dest entities.Chain) bool {
	_, ok := r.routes[routeKey{source: source, dest: dest}]
	return ok
}

// Chains lists all configured chains
func (r *Registry) Chains() []entities.ChainDescriptor {
	out := make([]entities.ChainDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	return out
}
