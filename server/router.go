package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/astrogo/indiserver/driver"
	"github.com/astrogo/indiserver/indi"
	"github.com/rickbassham/logging"
)

// DefaultMaxConnections and MaxConnectionsCeiling bound how many client
// connections a server will accept at once.
const (
	DefaultMaxConnections = 5
	MaxConnectionsCeiling = 10
)

// Config configures a Server.
type Config struct {
	Host           string
	Port           int
	MaxConnections int
	Log            logging.Logger

	// DestinationTimeout bounds how long the router waits to enqueue a
	// message to one destination before dropping it for that destination
	// only, so one stalled peer can never block delivery to the rest.
	DestinationTimeout time.Duration
	// DrainTimeout bounds how long a closing endpoint's writer drains
	// before being retired.
	DrainTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxConnections > MaxConnectionsCeiling {
		c.MaxConnections = MaxConnectionsCeiling
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 7624
	}
	if c.DestinationTimeout == 0 {
		c.DestinationTimeout = 2 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 2 * time.Second
	}
}

// Server is the INDI server router: it accepts client
// connections up to Config.MaxConnections, holds the in-process and
// subprocess driver set and the remote-upstream set, and routes every
// message between them under BLOB policy and snoop subscriptions.
type Server struct {
	cfg Config
	log logging.Logger

	listener  net.Listener
	acceptSem chan struct{}

	mu           sync.RWMutex
	clients      map[string]*endpoint
	subprocs     map[string]*subprocessDriver
	remotes      map[string]*remoteClient
	drivers      map[string]*driver.Driver
	deviceOwner  map[string]ownerRef // devicename -> who owns it

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ownerRef names the endpoint or driver that owns a device, so the
// router can target new*Vector / getProperties-with-device deliveries
// and so subprocess exit can clean up its devices.
type ownerRef struct {
	kind     Kind
	driverID string // valid when kind is kindLocalDriver
	subprocID string
}

const kindLocalDriver Kind = -1

// New constructs a Server; call Serve to start accepting connections.
func New(cfg Config) *Server {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         cfg,
		log:         cfg.Log,
		acceptSem:   make(chan struct{}, cfg.MaxConnections),
		clients:     map[string]*endpoint{},
		subprocs:    map[string]*subprocessDriver{},
		remotes:     map[string]*remoteClient{},
		drivers:     map[string]*driver.Driver{},
		deviceOwner: map[string]ownerRef{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// AddDriver registers an in-process driver, rejecting it if any of its
// devices duplicates a devicename already known to the server.
func (s *Server) AddDriver(d *driver.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dev := range d.Devices() {
		if _, exists := s.deviceOwner[dev.Name]; exists {
			return fmt.Errorf("server: device %q already registered: %w", dev.Name, indi.ErrDuplicateDevice)
		}
	}

	s.drivers[d.ID()] = d
	for _, dev := range d.Devices() {
		s.deviceOwner[dev.Name] = ownerRef{kind: kindLocalDriver, driverID: d.ID()}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		d.Run(s.ctx)
	}()

	return nil
}

// Publish implements driver.Sink: a driver calls this (indirectly, via
// its publish method) for every element it produces.
func (s *Server) Publish(originID, device, vector string, el indi.Element) {
	s.routeFromDriver(originID, device, vector, el)
}

// Subscribe implements driver.Sink: forwards a local driver's new snoop
// subscription to every remote upstream, since the upstream might own
// the device.
func (s *Server) Subscribe(device, vector string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.remotes {
		r.subscribe(device, vector)
	}
}

// AddRemote dials host:port as an outgoing remote-server connection and
// starts its reconnect loop in the background.
func (s *Server) AddRemote(host string, port int, defaultBlob indi.BlobEnable) *remoteClient {
	r := newRemoteClient(s, host, port, defaultBlob)

	s.mu.Lock()
	s.remotes[r.id] = r
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.run()
	}()

	return r
}

// Serve binds the listener and accepts client connections until ctx is
// cancelled. A bind failure is returned to the caller, which is expected
// to print a diagnostic and exit non-zero.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		s.cancel()
		_ = ln.Close()
	}()

	for {
		select {
		case s.acceptSem <- struct{}{}:
		case <-s.ctx.Done():
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			<-s.acceptSem
			select {
			case <-s.ctx.Done():
				return nil
			default:
				if s.log != nil {
					s.log.WithError(err).Warn("server: accept error")
				}
				continue
			}
		}

		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	defer func() { <-s.acceptSem }()

	ep := newEndpoint(KindClientSocket, conn, s.log, indi.BlobNever, s.cfg.DrainTimeout)

	s.mu.Lock()
	s.clients[ep.id] = ep
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, ep.id)
		s.mu.Unlock()
		ep.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ep.writeLoop(s.ctx)
	}()

	ep.readLoop(s.ctx, func(kind Kind, srcID string, el indi.Element) {
		s.routeFromClient(ep, el)
	})
}

// routeFromClient dispatches one element received from a client socket
// to the right handler based on its kind.
func (s *Server) routeFromClient(src *endpoint, el indi.Element) {
	device, vector := indi.ElementTarget(el)

	switch el.Kind {
	case indi.KindEnableBlob:
		s.applyEnableBlob(src, device, vector, el)
		return

	case indi.KindGetProperties:
		s.routeGetProperties(src, device, vector)
		return

	case indi.KindNewSwitchVector, indi.KindNewTextVector, indi.KindNewNumberVector, indi.KindNewBlobVector:
		s.routeNewVector(src, device, vector, el)
		return
	}
}

// applyEnableBlob mutates the issuing client's own BLOB policy; it is
// never forwarded anywhere else.
func (s *Server) applyEnableBlob(src *endpoint, device, vector string, el indi.Element) {
	ev := indi.NewEventFromElement(el)
	mode := indi.BlobEnable(ev.Values[""])
	if err := src.policy.Update(device, vector, mode); err != nil && s.log != nil {
		s.log.WithField("endpoint", src.id).WithError(err).Warn("server: invalid enableBLOB value")
	}
}

func (s *Server) routeGetProperties(src *endpoint, device, vector string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if device == "" {
		for _, d := range s.drivers {
			d.Deliver(s.ctx, indi.Event{Kind: indi.EventGetProperties})
		}
		for _, sp := range s.subprocs {
			sp.ep.enqueue(routedElement{el: indi.BuildGetPropertiesElement("", ""), device: "", vector: ""}, s.cfg.DestinationTimeout)
		}
		for _, r := range s.remotes {
			r.forwardGetProperties("", "")
		}
		return
	}

	owner, ok := s.deviceOwner[device]
	if ok && owner.kind == kindLocalDriver {
		if d, ok := s.drivers[owner.driverID]; ok {
			d.Deliver(s.ctx, indi.Event{Kind: indi.EventGetProperties, Device: device, Vector: vector})
		}
		return
	}
	if ok && owner.kind == KindDriverSubprocess {
		if sp, ok2 := s.subprocs[owner.subprocID]; ok2 {
			sp.ep.enqueue(routedElement{el: indi.BuildGetPropertiesElement(device, vector), device: device, vector: vector}, s.cfg.DestinationTimeout)
		}
		return
	}

	// Not known locally: ask any remote upstream known to provide it,
	// falling back to all of them.
	delivered := false
	for _, r := range s.remotes {
		if r.advertises(device) {
			r.forwardGetProperties(device, vector)
			delivered = true
		}
	}
	if !delivered {
		for _, r := range s.remotes {
			r.forwardGetProperties(device, vector)
		}
	}
}

func (s *Server) routeNewVector(src *endpoint, device, vector string, el indi.Element) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.deviceOwner[device]
	if ok && owner.kind == kindLocalDriver {
		if d, ok := s.drivers[owner.driverID]; ok {
			d.Deliver(s.ctx, indi.NewEventFromElement(el))
		}
		return
	}
	if ok && owner.kind == KindDriverSubprocess {
		if sp, ok2 := s.subprocs[owner.subprocID]; ok2 {
			sp.ep.enqueue(routedElement{el: el, device: device, vector: vector, isBlob: isBlobElement(el.Kind)}, s.cfg.DestinationTimeout)
		}
		return
	}

	delivered := false
	for _, r := range s.remotes {
		if r.advertises(device) {
			r.forwardElement(device, vector, el)
			delivered = true
		}
	}
	if !delivered {
		for _, r := range s.remotes {
			r.forwardElement(device, vector, el)
		}
	}
}

// routeFromDriver fans a driver-produced message out to every client,
// every snooping sibling driver, and every subscribed remote upstream.
// originID is never re-delivered to itself.
func (s *Server) routeFromDriver(originID, device, vector string, el indi.Element) {
	s.broadcastToClients(el, device, vector, originID)
	s.fanToSnoopingDrivers(originID, device, vector, el)
	s.fanToSubscribedRemotes(device, vector, el)
}

// routeFromRemote is identical to routeFromDriver except it is never
// re-forwarded to any remote upstream, which would let traffic cycle
// endlessly through a loop of remote servers.
func (s *Server) routeFromRemote(originID, device, vector string, el indi.Element) {
	s.broadcastToClients(el, device, vector, originID)
	s.fanToSnoopingDrivers(originID, device, vector, el)
}

func (s *Server) broadcastToClients(el indi.Element, device, vector, originID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	isBlob := isBlobElement(el.Kind)
	for id, c := range s.clients {
		if id == originID {
			continue
		}
		c.enqueue(routedElement{el: el, device: device, vector: vector, isBlob: isBlob}, s.cfg.DestinationTimeout)
	}
}

func (s *Server) fanToSnoopingDrivers(originID, device, vector string, el indi.Element) {
	ev := indi.NewEventFromElement(el)
	for id, d := range s.drivers {
		if id == originID {
			continue
		}
		if d.MatchesSnoop(device, vector) {
			d.DeliverSnoop(s.ctx, ev)
		}
	}
}

func (s *Server) fanToSubscribedRemotes(device, vector string, el indi.Element) {
	for _, r := range s.remotes {
		if r.subscribedTo(device, vector) {
			r.forwardElement(device, vector, el)
		}
	}
}

// Shutdown cancels the server context and waits for the goroutines it
// tracks. Accept, endpoint writers (each draining for up to DrainTimeout)
// and drivers all observe the one cancellation at the same time; their
// shutdown is not sequenced.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
}
