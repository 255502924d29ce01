package entities

// Chain identifies a supported blockchain
type Chain string

const (
	ChainBase   Chain = "base"
	ChainAptos  Chain = "aptos"
	ChainSolana Chain = "solana"
)

// ChainRole restricts which side of a transfer a chain may occupy
type ChainRole string

const (
	ChainRoleSource      ChainRole = "source"
	ChainRoleDestination ChainRole = "destination"
	ChainRoleBoth        ChainRole = "both"
)

// CanBurn reports whether the role allows the chain to act as a transfer source
func (r ChainRole) CanBurn() bool {
	return r == ChainRoleSource || r == ChainRoleBoth
}

// CanMint reports whether the role allows the chain to act as a transfer destination
func (r ChainRole) CanMint() bool {
	return r == ChainRoleDestination || r == ChainRoleBoth
}

// ChainDescriptor describes a supported chain. Loaded once at startup, read-only.
type ChainDescriptor struct {
	Chain         Chain     `json:"chain"`
	Role          ChainRole `json:"role"`
	TokenContract string    `json:"token_contract"`
	Confirmations int       `json:"confirmations"` // finality depth before a tx is treated as irreversible
	Domain        uint32    `json:"domain"`        // protocol-level domain id, distinct from native chain id
	AddressPrefix string    `json:"address_prefix"`
	AddressHexLen int       `json:"address_hex_len"` // hex chars after the prefix
}

// ValidAddress checks a recipient address against the chain's format rule
func (d ChainDescriptor) ValidAddress(addr string) bool {
	if len(addr) != len(d.AddressPrefix)+d.AddressHexLen {
		return false
	}
	if addr[:len(d.AddressPrefix)] != d.AddressPrefix {
		return false
	}
	for _, c := range addr[len(d.AddressPrefix):] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
