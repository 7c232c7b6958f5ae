package indi

import (
	"strings"
	"time"
)

// EventKind names the concrete shape of an Event. Events are never
// constructed by user code; they are derived from parsed wire Elements
// by NewEventFromElement and, for new*Vector events, further validated
// against a driver's device/vector table by the driver package.
type EventKind string

const (
	EventGetProperties   = EventKind("getProperties")
	EventEnableBlob      = EventKind("enableBLOB")
	EventNewSwitchVector = EventKind("newSwitchVector")
	EventNewTextVector   = EventKind("newTextVector")
	EventNewNumberVector = EventKind("newNumberVector")
	EventNewBlobVector   = EventKind("newBLOBVector")

	EventMessage        = EventKind("message")
	EventDelProperty    = EventKind("delProperty")
	EventDefTextVector  = EventKind("defTextVector")
	EventDefNumberVector = EventKind("defNumberVector")
	EventDefSwitchVector = EventKind("defSwitchVector")
	EventDefLightVector  = EventKind("defLightVector")
	EventDefBlobVector   = EventKind("defBLOBVector")
	EventSetTextVector   = EventKind("setTextVector")
	EventSetNumberVector = EventKind("setNumberVector")
	EventSetSwitchVector = EventKind("setSwitchVector")
	EventSetLightVector  = EventKind("setLightVector")
	EventSetBlobVector   = EventKind("setBLOBVector")
)

// Event is the tagged union every INDI element is turned into once
// parsed. Only the fields relevant to Kind are populated; the rest are
// left at their zero value. Carrying a closed set of kinds dispatched by
// this field keeps one switch in the dispatcher instead of a Go type per
// element.
type Event struct {
	Kind EventKind

	Device string
	Vector string // empty for a bare getProperties

	Timestamp    time.Time
	RawTimestamp string // preserved verbatim when Timestamp parsing fails

	// Present on def*/new*/set* events carrying member updates; the value
	// type is whatever the wire sent (SwitchState/PropertyState spellings
	// included) since only the owning vector's Kind gives it meaning.
	Values map[string]string

	// Present only on BLOB-kind def/new/set events.
	Blobs map[string]BlobMemberUpdate

	// Present on def* events and some set* events.
	Label, Group string
	State        PropertyState
	Perm         Permission
	Rule         SwitchRule
	Timeout      *float64
	Message      string
}

// parseTimestamp accepts "YYYY-MM-DDTHH:MM:SS[.fff]" in UTC; on failure,
// it returns now(UTC) and preserves the raw string.
func parseTimestamp(raw string) (time.Time, string) {
	if raw == "" {
		return time.Now().UTC(), raw
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, raw
		}
	}

	return time.Now().UTC(), raw
}

func trimValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// NewEventFromElement converts a parsed wire Element into an Event. It
// performs no device/vector lookups -- the driver package does that --
// and never fails: an Element it doesn't recognise as one of the closed
// set of kinds cannot occur, since Decoder only ever emits recognised kinds.
func NewEventFromElement(el Element) Event {
	switch v := el.Value.(type) {
	case *wireGetProperties:
		return Event{Kind: EventGetProperties, Device: v.Device, Vector: v.Name, Timestamp: time.Now().UTC()}

	case *wireEnableBlob:
		ev := Event{Kind: EventEnableBlob, Device: v.Device, Vector: v.Name, Timestamp: time.Now().UTC()}
		ev.Values = map[string]string{"": string(v.Value)}
		return ev

	case *wireNewSwitchVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, s := range v.Switches {
			vals[s.Name] = string(s.Value)
		}
		return Event{Kind: EventNewSwitchVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw, Values: trimValues(vals)}

	case *wireNewTextVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, t := range v.Texts {
			vals[t.Name] = t.Value
		}
		return Event{Kind: EventNewTextVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw, Values: vals}

	case *wireNewNumberVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, n := range v.Numbers {
			vals[n.Name] = strings.TrimSpace(n.Value)
		}
		return Event{Kind: EventNewNumberVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw, Values: vals}

	case *wireNewBlobVector:
		ts, raw := parseTimestamp(v.Timestamp)
		blobs := map[string]BlobMemberUpdate{}
		for _, b := range v.Blobs {
			blobs[b.Name] = BlobMemberUpdate{Format: b.Format, Size: b.Size, Value: strings.TrimSpace(b.Value)}
		}
		return Event{Kind: EventNewBlobVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw, Blobs: blobs}

	case *wireMessage:
		return Event{Kind: EventMessage, Device: v.Device, Timestamp: time.Now().UTC(), Message: v.Message}

	case *wireDelProperty:
		return Event{Kind: EventDelProperty, Device: v.Device, Vector: v.Name}

	case *wireDefTextVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, t := range v.Texts {
			vals[t.Name] = strings.TrimSpace(t.Value)
		}
		return Event{Kind: EventDefTextVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, Label: v.Label, Group: v.Group, State: v.State, Perm: v.Perm, Timeout: v.Timeout, Message: v.Message}

	case *wireDefNumberVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, n := range v.Numbers {
			vals[n.Name] = strings.TrimSpace(n.Value)
		}
		return Event{Kind: EventDefNumberVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, Label: v.Label, Group: v.Group, State: v.State, Perm: v.Perm, Timeout: v.Timeout, Message: v.Message}

	case *wireDefSwitchVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, s := range v.Switches {
			vals[s.Name] = strings.TrimSpace(string(s.Value))
		}
		return Event{Kind: EventDefSwitchVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, Label: v.Label, Group: v.Group, State: v.State, Perm: v.Perm, Rule: v.Rule, Timeout: v.Timeout, Message: v.Message}

	case *wireDefLightVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, l := range v.Lights {
			vals[l.Name] = strings.TrimSpace(string(l.Value))
		}
		return Event{Kind: EventDefLightVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, Label: v.Label, Group: v.Group, State: v.State, Message: v.Message}

	case *wireDefBlobVector:
		ts, raw := parseTimestamp(v.Timestamp)
		return Event{Kind: EventDefBlobVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Label: v.Label, Group: v.Group, State: v.State, Perm: v.Perm, Timeout: v.Timeout, Message: v.Message}

	case *wireSetTextVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, t := range v.Texts {
			vals[t.Name] = strings.TrimSpace(t.Value)
		}
		return Event{Kind: EventSetTextVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, State: v.State, Timeout: v.Timeout, Message: v.Message}

	case *wireSetNumberVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, n := range v.Numbers {
			vals[n.Name] = strings.TrimSpace(n.Value)
		}
		return Event{Kind: EventSetNumberVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, State: v.State, Timeout: v.Timeout, Message: v.Message}

	case *wireSetSwitchVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, s := range v.Switches {
			vals[s.Name] = strings.TrimSpace(string(s.Value))
		}
		return Event{Kind: EventSetSwitchVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, State: v.State, Timeout: v.Timeout, Message: v.Message}

	case *wireSetLightVector:
		ts, raw := parseTimestamp(v.Timestamp)
		vals := map[string]string{}
		for _, l := range v.Lights {
			vals[l.Name] = strings.TrimSpace(string(l.Value))
		}
		return Event{Kind: EventSetLightVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Values: vals, State: v.State, Message: v.Message}

	case *wireSetBlobVector:
		ts, raw := parseTimestamp(v.Timestamp)
		blobs := map[string]BlobMemberUpdate{}
		for _, b := range v.Blobs {
			blobs[b.Name] = BlobMemberUpdate{Format: b.Format, Size: b.Size, Value: strings.TrimSpace(b.Value)}
		}
		return Event{Kind: EventSetBlobVector, Device: v.Device, Vector: v.Name, Timestamp: ts, RawTimestamp: raw,
			Blobs: blobs, State: v.State, Timeout: v.Timeout, Message: v.Message}
	}

	return Event{}
}
