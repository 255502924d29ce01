package iris

const (
	// API Hosts
	MainnetURL = "https://iris-api.circle.com"
	SandboxURL = "https://iris-api-sandbox.circle.com"

	// Rate limiting
	MaxRequestsPerSecond = 35

	// Attestation statuses reported by the authority
	StatusPending  = "pending_confirmations"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)
