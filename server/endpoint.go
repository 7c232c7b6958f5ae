// Package server implements the INDI server runtime: per-connection
// endpoints (client sockets, subprocess drivers, remote upstreams), the
// routing/BLOB-policy fabric between them and in-process drivers, and
// the outgoing remote-server client.
//
// Each endpoint runs a reader/writer goroutine pair over any
// io.ReadWriteCloser, so a client socket, a subprocess's stdio pipe and
// an outgoing TCP dial are all the same shape from the router's point
// of view.
package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/astrogo/indiserver/indi"
	"github.com/google/uuid"
	"github.com/rickbassham/logging"
)

// Kind identifies what sits on the other end of an endpoint.
type Kind int

const (
	KindClientSocket Kind = iota
	KindDriverSubprocess
	KindRemoteUpstream
)

func (k Kind) String() string {
	switch k {
	case KindClientSocket:
		return "client"
	case KindDriverSubprocess:
		return "subprocess"
	case KindRemoteUpstream:
		return "remote"
	default:
		return "unknown"
	}
}

// endpointQueueCapacity is the bounded capacity of every endpoint's
// outbound queue.
const endpointQueueCapacity = 6

// endpoint is one connection: client socket, subprocess driver stdio, or
// outgoing remote-server socket. Its BLOB policy table is updated by the
// router when this endpoint's reader receives enableBLOB, and consulted
// by enqueue on whichever goroutine is delivering; indi.Policy locks
// internally, and enableBLOB itself is never put on the outbound channel.
type endpoint struct {
	id   string
	kind Kind
	conn io.ReadWriteCloser

	dec *indi.Decoder
	enc *indi.Encoder
	log logging.Logger

	policy *indi.Policy

	outbound     chan routedElement
	drainTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// routedElement pairs an Element with the device/vector it targets (for
// BLOB policy lookup) and whether it is itself a BLOB payload.
type routedElement struct {
	el     indi.Element
	device string
	vector string
	isBlob bool
}

func newEndpoint(kind Kind, conn io.ReadWriteCloser, log logging.Logger, defaultBlob indi.BlobEnable, drainTimeout time.Duration) *endpoint {
	return &endpoint{
		id:           uuid.New().String(),
		kind:         kind,
		conn:         conn,
		dec:          indi.NewDecoder(conn, log),
		enc:          indi.NewEncoder(conn),
		log:          log,
		policy:       indi.NewPolicy(defaultBlob),
		outbound:     make(chan routedElement, endpointQueueCapacity),
		drainTimeout: drainTimeout,
		closed:       make(chan struct{}),
	}
}

// isBlobElement reports whether el itself carries BLOB payload (as
// opposed to merely targeting a BLOB vector's metadata).
func isBlobElement(kind indi.ElementKind) bool {
	return kind == indi.KindSetBlobVector || kind == indi.KindNewBlobVector
}

// enqueue admits el under this endpoint's BLOB policy and attempts to
// deliver it within the destination timeout. It never blocks the caller
// indefinitely: on timeout the message is dropped for this destination
// only and logged with source/destination identifiers.
func (e *endpoint) enqueue(re routedElement, timeout time.Duration) {
	if re.el.Kind == indi.KindEnableBlob {
		return // never forwarded across endpoints
	}
	if !e.policy.Admit(re.isBlob, re.device, re.vector) {
		return
	}

	select {
	case e.outbound <- re:
	case <-e.closed:
	case <-time.After(timeout):
		if e.log != nil {
			e.log.WithField("destination", e.id).WithField("kind", string(re.el.Kind)).Warn("server: destination queue full, dropping for this endpoint")
		}
	}
}

// readLoop decodes elements until the connection closes or ctx is
// cancelled, handing each to onElement. Unrecognised or undecodable
// elements are skipped inside the decoder; any error the decoder returns
// (an I/O error, end of stream, or an XML syntax error) ends the loop and
// closes the endpoint.
func (e *endpoint) readLoop(ctx context.Context, onElement func(Kind, string, indi.Element)) {
	for {
		el, err := e.dec.Next()
		if err != nil {
			if e.log != nil && err != io.EOF {
				e.log.WithField("endpoint", e.id).WithError(err).Warn("server: connection read error")
			}
			e.Close()
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		onElement(e.kind, e.id, el)
	}
}

// writeLoop drains the outbound queue through the codec until the
// connection is closed; on close it drains for up to drainTimeout before
// the endpoint is retired.
func (e *endpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case re := <-e.outbound:
			if err := e.enc.Encode(re.el); err != nil {
				if e.log != nil {
					e.log.WithField("endpoint", e.id).WithError(err).Warn("server: connection write error")
				}
				e.Close()
				return
			}
		case <-e.closed:
			e.drain()
			return
		case <-ctx.Done():
			e.drain()
			return
		}
	}
}

func (e *endpoint) drain() {
	deadline := time.After(e.drainTimeout)
	for {
		select {
		case re := <-e.outbound:
			_ = e.enc.Encode(re.el)
		case <-deadline:
			return
		default:
			return
		}
	}
}

// Close marks the endpoint closed and closes the underlying connection.
// Safe to call more than once and from multiple goroutines.
func (e *endpoint) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		_ = e.conn.Close()
	})
}
