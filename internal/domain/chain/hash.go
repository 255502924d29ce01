package chain

// MessageHasher computes the protocol digest of canonical message bytes. The
// digest scheme is a property of the protocol deployment, so it is injected
// alongside the signers.
type MessageHasher func(messageBytes []byte) string
