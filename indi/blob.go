package indi

import "sync"

// Policy is the per-connection BLOB admission state: a default mode, a
// per-device override, and a per-(device,vector) override, with
// vector > device > default precedence. It is safe for concurrent use.
type Policy struct {
	mu      sync.Mutex
	def     BlobEnable
	device  map[string]BlobEnable
	vector  map[vectorKey]BlobEnable
}

type vectorKey struct {
	device string
	vector string
}

// NewPolicy returns a Policy with the given default mode. Accepted client
// sockets start at BlobNever; subprocess and remote-upstream endpoints
// start at BlobAlso.
func NewPolicy(defaultMode BlobEnable) *Policy {
	return &Policy{def: defaultMode, device: map[string]BlobEnable{}, vector: map[vectorKey]BlobEnable{}}
}

// Update applies an enableBLOB command to the most specific key it
// carries: vector-scoped if both device and vector are non-empty, else
// device-scoped if device is non-empty, else the connection default.
func (p *Policy) Update(device, vector string, value BlobEnable) error {
	if !validBlobEnable(value) {
		return ErrInvalidBlobEnable
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case vector != "" && device != "":
		p.vector[vectorKey{device, vector}] = value
	case device != "":
		p.device[device] = value
	default:
		p.def = value
	}
	return nil
}

// effective returns the first defined mode among vector-level,
// device-level and default.
func (p *Policy) effective(device, vector string) BlobEnable {
	p.mu.Lock()
	defer p.mu.Unlock()
	if vector != "" {
		if m, ok := p.vector[vectorKey{device, vector}]; ok {
			return m
		}
	}
	if device != "" {
		if m, ok := p.device[device]; ok {
			return m
		}
	}
	return p.def
}

// Admit decides whether an outbound message for (device, vector), which
// is or is not itself a BLOB payload, should be sent under this policy.
func (p *Policy) Admit(isBlob bool, device, vector string) bool {
	mode := p.effective(device, vector)

	if isBlob {
		return mode != BlobNever
	}
	return mode != BlobOnly
}
