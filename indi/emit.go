package indi

import (
	"encoding/base64"
	"time"
)

// This file is the inverse of event.go: it turns the Device/Vector model
// into outbound Elements. Numeric attribute formatting preserves the
// member's user-supplied Format string verbatim; it is never reformatted
// by the codec.

func timeOrNil(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.0")
}

// BuildDefElement renders v as its defXxxVector element. blobs is not
// used: defBLOB elements carry no payload, so it is ignored for every
// vector kind.
func BuildDefElement(v *Vector, blobs map[string][]byte) Element {
	switch v.Kind {
	case KindText:
		w := &wireDefTextVector{Device: v.Device.Name, Name: v.Name, Label: v.Label, Group: v.Group,
			State: v.State, Perm: v.Perm, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			w.Texts = append(w.Texts, wireDefText{Name: m.Name, Label: m.Label, Value: m.Value})
		}
		return Element{Kind: KindDefTextVector, Value: w}

	case KindNumber:
		w := &wireDefNumberVector{Device: v.Device.Name, Name: v.Name, Label: v.Label, Group: v.Group,
			State: v.State, Perm: v.Perm, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			w.Numbers = append(w.Numbers, wireDefNumber{Name: m.Name, Label: m.Label, Format: m.Format, Min: m.Min, Max: m.Max, Step: m.Step, Value: m.Value})
		}
		return Element{Kind: KindDefNumberVector, Value: w}

	case KindSwitch:
		w := &wireDefSwitchVector{Device: v.Device.Name, Name: v.Name, Label: v.Label, Group: v.Group,
			State: v.State, Perm: v.Perm, Rule: v.Rule, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			w.Switches = append(w.Switches, wireDefSwitch{Name: m.Name, Label: m.Label, Value: SwitchState(m.Value)})
		}
		return Element{Kind: KindDefSwitchVector, Value: w}

	case KindLight:
		w := &wireDefLightVector{Device: v.Device.Name, Name: v.Name, Label: v.Label, Group: v.Group,
			State: v.State, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			w.Lights = append(w.Lights, wireDefLight{Name: m.Name, Label: m.Label, Value: PropertyState(m.Value)})
		}
		return Element{Kind: KindDefLightVector, Value: w}

	case KindBLOB:
		w := &wireDefBlobVector{Device: v.Device.Name, Name: v.Name, Label: v.Label, Group: v.Group,
			State: v.State, Perm: v.Perm, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			w.Blobs = append(w.Blobs, wireDefBlob{Name: m.Name, Label: m.Label})
		}
		return Element{Kind: KindDefBlobVector, Value: w}
	}

	return Element{}
}

// BuildSetElement renders v as its setXxxVector element, restricted to
// the member names in only (nil or empty means all members). blobs
// supplies payload bytes for BLOB members, as in BuildDefElement.
func BuildSetElement(v *Vector, only []string, blobs map[string][]byte) Element {
	include := func(name string) bool {
		if len(only) == 0 {
			return true
		}
		for _, n := range only {
			if n == name {
				return true
			}
		}
		return false
	}

	switch v.Kind {
	case KindText:
		w := &wireSetTextVector{Device: v.Device.Name, Name: v.Name, State: v.State, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			if include(m.Name) {
				w.Texts = append(w.Texts, wireOneText{Name: m.Name, Value: m.Value})
			}
		}
		return Element{Kind: KindSetTextVector, Value: w}

	case KindNumber:
		w := &wireSetNumberVector{Device: v.Device.Name, Name: v.Name, State: v.State, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			if include(m.Name) {
				w.Numbers = append(w.Numbers, wireOneNumber{Name: m.Name, Value: m.Value})
			}
		}
		return Element{Kind: KindSetNumberVector, Value: w}

	case KindSwitch:
		w := &wireSetSwitchVector{Device: v.Device.Name, Name: v.Name, State: v.State, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			if include(m.Name) {
				w.Switches = append(w.Switches, wireOneSwitch{Name: m.Name, Value: SwitchState(m.Value)})
			}
		}
		return Element{Kind: KindSetSwitchVector, Value: w}

	case KindLight:
		w := &wireSetLightVector{Device: v.Device.Name, Name: v.Name, State: v.State, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			if include(m.Name) {
				w.Lights = append(w.Lights, wireOneLight{Name: m.Name, Value: PropertyState(m.Value)})
			}
		}
		return Element{Kind: KindSetLightVector, Value: w}

	case KindBLOB:
		w := &wireSetBlobVector{Device: v.Device.Name, Name: v.Name, State: v.State, Timeout: v.Timeout, Timestamp: timeOrNil(v.Timestamp)}
		for _, m := range v.members {
			if !include(m.Name) {
				continue
			}
			one := wireOneBlob{Name: m.Name, Format: m.Format, Size: m.BlobSize}
			if payload, ok := blobs[m.Name]; ok {
				one.Value = base64.StdEncoding.EncodeToString(payload)
			}
			w.Blobs = append(w.Blobs, one)
		}
		return Element{Kind: KindSetBlobVector, Value: w}
	}

	return Element{}
}

// BuildDelPropertyElement renders a delProperty element for vector (empty
// deletes the whole device).
func BuildDelPropertyElement(device, vector string) Element {
	return Element{Kind: KindDelProperty, Value: &wireDelProperty{Device: device, Name: vector, Timestamp: timeOrNil(time.Now())}}
}

// BuildMessageElement renders a message element associated with device
// (empty for a system-wide message).
func BuildMessageElement(device, text string) Element {
	return Element{Kind: KindMessage, Value: &wireMessage{Device: device, Message: text, Timestamp: timeOrNil(time.Now())}}
}

// BuildGetPropertiesElement renders a getProperties request for device/vector (either may be empty).
func BuildGetPropertiesElement(device, vector string) Element {
	return Element{Kind: KindGetProperties, Value: &wireGetProperties{Version: "1.7", Device: device, Name: vector}}
}

// BuildEnableBlobElement renders an enableBLOB command.
func BuildEnableBlobElement(device, vector string, value BlobEnable) Element {
	return Element{Kind: KindEnableBlob, Value: &wireEnableBlob{Device: device, Name: vector, Value: value}}
}

// BuildNewSwitchVectorElement renders a newSwitchVector client command.
func BuildNewSwitchVectorElement(device, vector string, updates map[string]SwitchState) Element {
	w := &wireNewSwitchVector{Device: device, Name: vector}
	for name, val := range updates {
		w.Switches = append(w.Switches, wireOneSwitch{Name: name, Value: val})
	}
	return Element{Kind: KindNewSwitchVector, Value: w}
}

// BuildNewTextVectorElement renders a newTextVector client command.
func BuildNewTextVectorElement(device, vector string, updates map[string]string) Element {
	w := &wireNewTextVector{Device: device, Name: vector}
	for name, val := range updates {
		w.Texts = append(w.Texts, wireOneText{Name: name, Value: val})
	}
	return Element{Kind: KindNewTextVector, Value: w}
}

// BuildNewNumberVectorElement renders a newNumberVector client command.
func BuildNewNumberVectorElement(device, vector string, updates map[string]string) Element {
	w := &wireNewNumberVector{Device: device, Name: vector}
	for name, val := range updates {
		w.Numbers = append(w.Numbers, wireOneNumber{Name: name, Value: val})
	}
	return Element{Kind: KindNewNumberVector, Value: w}
}

// BuildNewBlobVectorElement renders a newBLOBVector client command.
func BuildNewBlobVectorElement(device, vector string, blobs map[string]BlobMemberUpdate, payloads map[string][]byte) Element {
	w := &wireNewBlobVector{Device: device, Name: vector}
	for name, meta := range blobs {
		one := wireOneBlob{Name: name, Format: meta.Format, Size: meta.Size}
		if payload, ok := payloads[name]; ok {
			one.Value = base64.StdEncoding.EncodeToString(payload)
		}
		w.Blobs = append(w.Blobs, one)
	}
	return Element{Kind: KindNewBlobVector, Value: w}
}
