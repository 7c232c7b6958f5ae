package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/astrogo/indiserver/indi"
	"github.com/google/uuid"
	"github.com/rickbassham/logging"
)

// remoteBackoffFloor and remoteBackoffCap bound the reconnect backoff for
// an outgoing remote-server connection: 1s growing to a 30s ceiling.
const (
	remoteBackoffFloor = 1 * time.Second
	remoteBackoffCap   = 30 * time.Second
)

// remoteClient is the outgoing connection to another INDI server. It
// dials host:port, replays its subscriptions after every reconnect, and
// tracks which devices the far end has advertised via
// defXxxVector so the router can target getProperties and new*Vector
// traffic instead of blindly broadcasting to every remote.
type remoteClient struct {
	id   string
	host string
	port int
	log  logging.Logger

	defaultBlob  indi.BlobEnable
	drainTimeout time.Duration

	mu            sync.Mutex
	ep            *endpoint
	advertised    map[string]bool
	subscriptions map[string]bool // "" -> whole tree, "device" -> device, "device/vector" -> vector

	srv *Server

	ctx    context.Context
	cancel context.CancelFunc
}

func newRemoteClient(srv *Server, host string, port int, defaultBlob indi.BlobEnable) *remoteClient {
	ctx, cancel := context.WithCancel(srv.ctx)
	return &remoteClient{
		id:            uuid.New().String(),
		host:          host,
		port:          port,
		log:           srv.log,
		defaultBlob:   defaultBlob,
		drainTimeout:  srv.cfg.DrainTimeout,
		advertised:    map[string]bool{},
		subscriptions: map[string]bool{},
		srv:           srv,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// run dials, handshakes and reads until ctx is cancelled, reconnecting
// with exponential backoff on every disconnect.
func (r *remoteClient) run() {
	backoff := remoteBackoffFloor
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", net.JoinHostPort(r.host, fmt.Sprint(r.port)), 10*time.Second)
		if err != nil {
			if r.log != nil {
				r.log.WithField("remote", r.addr()).WithError(err).Warn("server: remote dial failed, backing off")
			}
			if !r.sleepBackoff(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = remoteBackoffFloor
		r.attach(conn)
		r.replaySubscriptions()
		r.readUntilDisconnect()
		r.detach()
		if !r.sleepBackoff(backoff) {
			return
		}
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > remoteBackoffCap {
		return remoteBackoffCap
	}
	return next
}

func (r *remoteClient) sleepBackoff(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *remoteClient) attach(conn net.Conn) {
	ep := newEndpoint(KindRemoteUpstream, conn, r.log, r.defaultBlob, r.drainTimeout)

	r.mu.Lock()
	r.ep = ep
	r.advertised = map[string]bool{}
	r.mu.Unlock()

	r.srv.wg.Add(1)
	go func() {
		defer r.srv.wg.Done()
		ep.writeLoop(r.ctx)
	}()

	ep.enqueue(routedElement{el: indi.BuildGetPropertiesElement("", "")}, r.drainTimeout)
}

func (r *remoteClient) readUntilDisconnect() {
	r.mu.Lock()
	ep := r.ep
	r.mu.Unlock()
	if ep == nil {
		return
	}

	ep.readLoop(r.ctx, func(kind Kind, srcID string, el indi.Element) {
		device, vector := indi.ElementTarget(el)
		r.observe(el.Kind, device)
		r.srv.routeFromRemote(r.id, device, vector, el)
	})
}

// observe records device as advertised once this remote has sent a
// defXxxVector for it.
func (r *remoteClient) observe(kind indi.ElementKind, device string) {
	switch kind {
	case indi.KindDefTextVector, indi.KindDefNumberVector, indi.KindDefSwitchVector, indi.KindDefLightVector, indi.KindDefBlobVector:
		if device == "" {
			return
		}
		r.mu.Lock()
		r.advertised[device] = true
		r.mu.Unlock()
	}
}

func (r *remoteClient) detach() {
	r.mu.Lock()
	ep := r.ep
	r.ep = nil
	r.mu.Unlock()
	if ep != nil {
		ep.Close()
	}
}

func (r *remoteClient) advertises(device string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advertised[device]
}

// subscribe records that this server wants device[/vector] traffic from
// this remote (forwarded here from a local driver's SendGetProperties via
// Server.Subscribe) and, if currently connected, requests it immediately.
func (r *remoteClient) subscribe(device, vector string) {
	r.mu.Lock()
	r.subscriptions[subscriptionKey(device, vector)] = true
	r.mu.Unlock()

	r.forwardGetProperties(device, vector)
}

func (r *remoteClient) subscribedTo(device, vector string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscriptions[subscriptionKey("", "")] {
		return true
	}
	if r.subscriptions[subscriptionKey(device, "")] {
		return true
	}
	return r.subscriptions[subscriptionKey(device, vector)]
}

func subscriptionKey(device, vector string) string { return device + "/" + vector }

func (r *remoteClient) replaySubscriptions() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.subscriptions))
	for k := range r.subscriptions {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	for _, k := range keys {
		var device, vector string
		for i := 0; i < len(k); i++ {
			if k[i] == '/' {
				device, vector = k[:i], k[i+1:]
				break
			}
		}
		r.forwardGetProperties(device, vector)
	}
}

func (r *remoteClient) forwardGetProperties(device, vector string) {
	r.enqueue(indi.BuildGetPropertiesElement(device, vector), device, vector, false)
}

func (r *remoteClient) forwardElement(device, vector string, el indi.Element) {
	r.enqueue(el, device, vector, isBlobElement(el.Kind))
}

func (r *remoteClient) enqueue(el indi.Element, device, vector string, isBlob bool) {
	r.mu.Lock()
	ep := r.ep
	r.mu.Unlock()
	if ep == nil {
		return // not currently connected; replayed on reconnect for subscriptions
	}
	ep.enqueue(routedElement{el: el, device: device, vector: vector, isBlob: isBlob}, r.drainTimeout)
}

func (r *remoteClient) addr() string {
	return net.JoinHostPort(r.host, fmt.Sprint(r.port))
}

func (r *remoteClient) close() {
	r.cancel()
	r.mu.Lock()
	ep := r.ep
	r.mu.Unlock()
	if ep != nil {
		ep.Close()
	}
}
