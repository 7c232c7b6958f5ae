package indi

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/rickbassham/logging"
)

// Element is a single top-level INDI message, decoded from the wire and
// carrying its origin-agnostic payload as one of the def/set/new element
// types, message or delProperty. Decoder.Next returns these; Encoder.Encode
// consumes them. Element is a closed tagged union dispatched by Kind,
// one Go type per element kind would just push the same switch into every
// caller.
type Element struct {
	Kind  ElementKind
	Value interface{}
}

// ElementKind names the concrete wire shape carried by an Element.
type ElementKind string

const (
	KindGetProperties   = ElementKind("getProperties")
	KindEnableBlob      = ElementKind("enableBLOB")
	KindDefTextVector   = ElementKind("defTextVector")
	KindDefNumberVector = ElementKind("defNumberVector")
	KindDefSwitchVector = ElementKind("defSwitchVector")
	KindDefLightVector  = ElementKind("defLightVector")
	KindDefBlobVector   = ElementKind("defBLOBVector")
	KindNewTextVector   = ElementKind("newTextVector")
	KindNewNumberVector = ElementKind("newNumberVector")
	KindNewSwitchVector = ElementKind("newSwitchVector")
	KindNewBlobVector   = ElementKind("newBLOBVector")
	KindSetTextVector   = ElementKind("setTextVector")
	KindSetNumberVector = ElementKind("setNumberVector")
	KindSetSwitchVector = ElementKind("setSwitchVector")
	KindSetLightVector  = ElementKind("setLightVector")
	KindSetBlobVector   = ElementKind("setBLOBVector")
	KindMessage         = ElementKind("message")
	KindDelProperty     = ElementKind("delProperty")
)

// Decoder incrementally parses a byte stream into top-level INDI
// elements, built directly on encoding/xml's streaming Decoder.Token.
// The wire carries no root element: Decoder accepts a continuous run of
// sibling top-level elements interleaved with whitespace.
type Decoder struct {
	xd  *xml.Decoder
	log logging.Logger
}

// NewDecoder returns a Decoder reading from r. log receives a Warn for
// every unrecognised element and for every element that cannot be
// decoded into its wire struct.
func NewDecoder(r io.Reader, log logging.Logger) *Decoder {
	return &Decoder{xd: xml.NewDecoder(r), log: log}
}

// Next blocks until one complete top-level element has been read, or
// returns the underlying error (typically io.EOF) from the stream.
// Character data between elements is discarded, and an unrecognised
// element is logged and skipped. An XML syntax error is returned like
// any other stream error: encoding/xml keeps returning it, so the stream
// cannot be read past it.
func (d *Decoder) Next() (Element, error) {
	for {
		tok, err := d.xd.Token()
		if err != nil {
			return Element{}, err
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var inner interface{}
		kind := ElementKind(se.Name.Local)

		switch kind {
		case KindGetProperties:
			inner = &wireGetProperties{}
		case KindEnableBlob:
			inner = &wireEnableBlob{}
		case KindDefTextVector:
			inner = &wireDefTextVector{}
		case KindDefNumberVector:
			inner = &wireDefNumberVector{}
		case KindDefSwitchVector:
			inner = &wireDefSwitchVector{}
		case KindDefLightVector:
			inner = &wireDefLightVector{}
		case KindDefBlobVector:
			inner = &wireDefBlobVector{}
		case KindNewTextVector:
			inner = &wireNewTextVector{}
		case KindNewNumberVector:
			inner = &wireNewNumberVector{}
		case KindNewSwitchVector:
			inner = &wireNewSwitchVector{}
		case KindNewBlobVector:
			inner = &wireNewBlobVector{}
		case KindSetTextVector:
			inner = &wireSetTextVector{}
		case KindSetNumberVector:
			inner = &wireSetNumberVector{}
		case KindSetSwitchVector:
			inner = &wireSetSwitchVector{}
		case KindSetLightVector:
			inner = &wireSetLightVector{}
		case KindSetBlobVector:
			inner = &wireSetBlobVector{}
		case KindMessage:
			inner = &wireMessage{}
		case KindDelProperty:
			inner = &wireDelProperty{}
		default:
			if d.log != nil {
				d.log.WithField("element", se.Name.Local).Warn("indi: unrecognised top-level element, skipping")
			}
			if err := d.xd.Skip(); err != nil {
				return Element{}, err
			}
			continue
		}

		if err := d.xd.DecodeElement(inner, &se); err != nil {
			if d.log != nil {
				d.log.WithField("element", se.Name.Local).WithError(err).Warn("indi: malformed element, resynchronising")
			}
			continue
		}

		return Element{Kind: kind, Value: inner}, nil
	}
}

// Encoder emits well-formed INDI XML from Elements. It never wraps
// elements in a synthetic root; each Encode call writes exactly one
// self-contained element.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals el and writes it to the underlying writer in one call.
func (e *Encoder) Encode(el Element) error {
	b, err := xml.Marshal(el.Value)
	if err != nil {
		return fmt.Errorf("indi: marshal %s: %w", el.Kind, err)
	}

	_, err = e.w.Write(b)
	return err
}
