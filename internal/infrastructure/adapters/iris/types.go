package iris

// AttestationStatus is the authority's answer for one message hash
type AttestationStatus struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation,omitempty"`
	Message     string `json:"message,omitempty"` // hex canonical message bytes
	Error       string `json:"error,omitempty"`
}

// Pending reports whether the authority has not finished signing yet
func (s *AttestationStatus) Pending() bool {
	return s.Status == StatusPending
}

// Complete reports whether a signature is available
func (s *AttestationStatus) Complete() bool {
	return s.Status == StatusComplete && s.Attestation != ""
}
