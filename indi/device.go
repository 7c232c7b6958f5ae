package indi

import (
	"encoding/base64"
	"strings"
	"time"
)

// Member is a single named value inside a Vector. Which fields are
// meaningful depends on the owning Vector's Kind: Min/Max/Step only
// apply to Number members, BlobPath/BlobSize only to BLOB members, and
// Format is the number format for Number members and the format hint
// (file extension) for BLOB members.
// Member never owns its Vector; it is reached only through it.
type Member struct {
	Name  string
	Label string
	Value string

	// Number (and, for Format, BLOB).
	Format string
	Min    string
	Max    string
	Step   string

	// BLOB-only: the payload is not kept resident, only a reference to
	// where C9 (BLOB storage) persisted it, plus the declared length.
	BlobPath string
	BlobSize int64
}

// clone returns a value copy of m, used so that Vector.OrderedMembers
// never hands out a pointer into the vector's own storage.
func (m Member) clone() Member { return m }

// Vector is a named, strongly typed group of Members forming one atomic
// update unit, identified by (Device.Name, Name). A Vector is reached
// only through its owning Device; it holds a non-owning back-reference
// to that Device for convenience when building events.
type Vector struct {
	Device *Device

	Name  string
	Label string
	Group string

	Kind  VectorKind
	State PropertyState
	Perm  Permission // zero value for Light vectors, which have no permission.
	Rule  SwitchRule // only meaningful when Kind == KindSwitch.

	Timeout   *float64
	Timestamp time.Time
	Enable    bool

	members     []*Member
	memberIndex map[string]int
}

// NewVector constructs an empty Vector of the given kind. Use AddMember
// to populate it before attaching it to a Device with Device.AddVector.
func NewVector(kind VectorKind, name, label, group string, state PropertyState, perm Permission) *Vector {
	return &Vector{
		Name:        name,
		Label:       label,
		Group:       group,
		Kind:        kind,
		State:       state,
		Perm:        perm,
		Enable:      true,
		Timestamp:   time.Now().UTC(),
		memberIndex: map[string]int{},
	}
}

// WithRule sets the switch rule and returns the receiver, for construction chaining.
func (v *Vector) WithRule(r SwitchRule) *Vector {
	v.Rule = r
	return v
}

// WithTimeout sets the vector's timeout (seconds) and returns the receiver.
func (v *Vector) WithTimeout(seconds float64) *Vector {
	v.Timeout = &seconds
	return v
}

// AddMember appends m to the vector, rejecting duplicate member names
// and BLOB members on a non-BLOB vector.
func (v *Vector) AddMember(m Member) error {
	if _, exists := v.memberIndex[m.Name]; exists {
		return ErrDuplicateMember
	}
	if (m.BlobPath != "" || m.BlobSize != 0) && v.Kind != KindBLOB {
		return ErrBlobOutsideBlobVector
	}

	cp := m
	v.memberIndex[m.Name] = len(v.members)
	v.members = append(v.members, &cp)
	return nil
}

// Member looks up a member by name.
func (v *Vector) Member(name string) (*Member, bool) {
	idx, ok := v.memberIndex[name]
	if !ok {
		return nil, false
	}
	return v.members[idx], true
}

// OrderedMembers returns the vector's members in definition order.
func (v *Vector) OrderedMembers() []*Member {
	out := make([]*Member, len(v.members))
	for i, m := range v.members {
		c := m.clone()
		out[i] = &c
	}
	return out
}

// Snapshot returns a name->value map of the vector's current member
// values, used by the driver to detect whether SendSetVector has
// anything new to transmit.
func (v *Vector) Snapshot() map[string]string {
	out := make(map[string]string, len(v.members))
	for _, m := range v.members {
		out[m.Name] = m.Value
	}
	return out
}

// ApplySwitchUpdate sets the given switch members and enforces the
// vector's Rule. The update is validated against a
// candidate state before anything is mutated, so a rejected update never
// leaves the vector partially changed.
func (v *Vector) ApplySwitchUpdate(updates map[string]SwitchState) error {
	if v.Kind != KindSwitch {
		return ErrVectorTypeMismatch
	}

	candidate := make(map[string]SwitchState, len(v.members))
	for _, m := range v.members {
		candidate[m.Name] = SwitchState(m.Value)
	}
	for name, val := range updates {
		if _, ok := candidate[name]; !ok {
			continue
		}
		candidate[name] = val
	}

	onCount := 0
	for _, val := range candidate {
		if val == SwitchOn {
			onCount++
		}
	}

	switch v.Rule {
	case RuleOneOfMany:
		if onCount != 1 {
			return ErrSwitchRuleViolation
		}
	case RuleAtMostOne:
		if onCount > 1 {
			return ErrSwitchRuleViolation
		}
	}

	for _, m := range v.members {
		m.Value = string(candidate[m.Name])
	}
	return nil
}

// ApplyTextUpdate sets the given text members, leaving members not named
// in updates unchanged (the partial-update invariant).
func (v *Vector) ApplyTextUpdate(updates map[string]string) error {
	if v.Kind != KindText {
		return ErrVectorTypeMismatch
	}
	for name, val := range updates {
		if m, ok := v.Member(name); ok {
			m.Value = val
		}
	}
	return nil
}

// ApplyNumberUpdate sets the given number members from their wire string
// representations, leaving members not named in updates unchanged.
func (v *Vector) ApplyNumberUpdate(updates map[string]string) error {
	if v.Kind != KindNumber {
		return ErrVectorTypeMismatch
	}
	for name, val := range updates {
		if m, ok := v.Member(name); ok {
			m.Value = val
		}
	}
	return nil
}

// BlobMemberUpdate is one member's worth of a BLOB vector update.
// Path/Format/Size describe where a payload already landed on disk;
// Value carries the raw, still base64-encoded wire payload for an
// update that hasn't been persisted yet -- decoding it is left until
// something actually needs the bytes, via DecodedValue.
type BlobMemberUpdate struct {
	Path   string
	Format string
	Size   int64
	Value  string
}

// DecodedValue base64-decodes Value. It returns an error if Value isn't
// valid base64; callers that only care about Path can ignore it.
func (b BlobMemberUpdate) DecodedValue() ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(b.Value))
}

// ApplyBlobUpdate sets the given BLOB members' storage references.
func (v *Vector) ApplyBlobUpdate(updates map[string]BlobMemberUpdate) error {
	if v.Kind != KindBLOB {
		return ErrVectorTypeMismatch
	}
	for name, val := range updates {
		if m, ok := v.Member(name); ok {
			m.BlobPath = val.Path
			m.Format = val.Format
			m.BlobSize = val.Size
		}
	}
	return nil
}

// Device is the unique-within-its-driver named container of Vectors.
// Devices and their Vectors are created at driver construction; they are
// never deleted, only disabled.
type Device struct {
	Name   string
	Enable bool

	vectors     []*Vector
	vectorIndex map[string]int
}

// NewDevice constructs an empty, enabled Device.
func NewDevice(name string) *Device {
	return &Device{Name: name, Enable: true, vectorIndex: map[string]int{}}
}

// AddVector attaches v to the device, rejecting a duplicate vector name
// and setting v's back-reference.
func (d *Device) AddVector(v *Vector) error {
	if _, exists := d.vectorIndex[v.Name]; exists {
		return ErrDuplicateVector
	}
	v.Device = d
	d.vectorIndex[v.Name] = len(d.vectors)
	d.vectors = append(d.vectors, v)
	return nil
}

// Vector looks up a vector by name.
func (d *Device) Vector(name string) (*Vector, bool) {
	idx, ok := d.vectorIndex[name]
	if !ok {
		return nil, false
	}
	return d.vectors[idx], true
}

// Vectors returns the device's vectors in definition order.
func (d *Device) Vectors() []*Vector {
	out := make([]*Vector, len(d.vectors))
	copy(out, d.vectors)
	return out
}

// DisableVector flips a single vector's Enable to false, the state a
// caller transitions to before emitting delProperty for it. Re-enabling
// requires re-sending the vector's full definition, which is not
// something the model layer can do on the caller's behalf.
func (d *Device) DisableVector(name string) {
	if v, ok := d.Vector(name); ok {
		v.Enable = false
	}
}

// Disable flips the device's own Enable to false. Every vector is left
// as-is; the caller is responsible for emitting delProperty for the
// device and, if desired, disabling each vector too.
func (d *Device) Disable() {
	d.Enable = false
}
