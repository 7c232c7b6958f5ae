// Package driver implements the INDI driver runtime: it owns a set of
// devices, dispatches inbound client and snoop events to user-supplied
// callbacks, and exposes the queued send API drivers use to publish
// vector definitions, updates and messages.
//
// Two bounded queues (inbound, snoop-inbound) feed two dispatcher
// goroutines: the inbound one type-switches on indi.Event.Kind to decide
// whether OnRxEvent is invoked, the snoop one hands every event to
// OnSnoopEvent. Outbound elements are not queued; each Send* call hands
// its element straight to the Sink.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/astrogo/indiserver/indi"
	"github.com/rickbassham/logging"
	"github.com/spf13/afero"
)

// queueCapacity is the bounded capacity of every driver-internal queue.
const queueCapacity = 4

// Callbacks is the capability contract a driver author implements. Embed
// DefaultCallbacks to get a sensible no-op default for any subset left
// unimplemented.
type Callbacks interface {
	// OnRxEvent handles an inbound client event once getProperties
	// auto-handling (if enabled) has been applied.
	OnRxEvent(ctx context.Context, d *Driver, ev indi.Event)
	// OnHardware runs once as a long-lived background task; it must
	// observe ctx and return when it is cancelled.
	OnHardware(ctx context.Context, d *Driver)
	// OnSnoopEvent handles traffic observed from a foreign device this
	// driver has subscribed to.
	OnSnoopEvent(ctx context.Context, d *Driver, ev indi.Event)
}

// DefaultCallbacks is a no-op implementation of Callbacks; embed it in a
// concrete callback type to only override the methods that matter.
type DefaultCallbacks struct{}

func (DefaultCallbacks) OnRxEvent(ctx context.Context, d *Driver, ev indi.Event)    {}
func (DefaultCallbacks) OnHardware(ctx context.Context, d *Driver)                  {}
func (DefaultCallbacks) OnSnoopEvent(ctx context.Context, d *Driver, ev indi.Event) {}

// Sink is the connection-agnostic destination a Driver publishes
// outbound elements and subscription changes to. The server package
// implements it; tests can use a simple channel-backed fake.
type Sink interface {
	// Publish delivers an element produced by this driver for device/vector
	// to the router, tagged with the driver's origin id so the router can
	// skip delivering it back to its origin.
	Publish(originID string, device, vector string, el indi.Element)
	// Subscribe records that this driver wants traffic for device[/vector]
	// from elsewhere, forwarding to remote upstreams as needed.
	Subscribe(device, vector string)
}

// Config configures a Driver.
type Config struct {
	Devices   []*indi.Device
	Callbacks Callbacks
	Log       logging.Logger
	Fs        afero.Fs // BLOB payload storage; defaults to afero.NewOsFs() if nil.

	// AutoGetProperties, when true (the default), answers getProperties
	// automatically with matching defXxxVector and suppresses delivery to
	// OnRxEvent for that event.
	AutoGetProperties *bool

	// HardwareDrainTimeout bounds how long Run waits, once its context is
	// cancelled, for OnHardware and the dispatchers to return.
	HardwareDrainTimeout time.Duration

	// UserData is an opaque bag exposed to callbacks via Driver.UserData.
	UserData interface{}
}

// Driver owns a set of Devices and runs a user's callbacks against them.
// The device/vector graph is logically owned by the goroutine running
// the dispatcher loops; Send* methods are the only supported way to
// mutate it from elsewhere.
type Driver struct {
	id        string
	log       logging.Logger
	fs        afero.Fs
	callbacks Callbacks
	userData  interface{}
	sink      Sink

	devices     map[string]*indi.Device
	autoGetProp bool

	inbound      chan indi.Event
	snoopInbound chan indi.Event

	snoopMu      sync.Mutex
	snoopAll     bool
	snoopDevices map[string]bool
	snoopVectors map[string]bool // "device/vector"

	sentMu   sync.Mutex
	sentVals map[string]map[string]string // "device/vector" -> last transmitted member values

	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	drainWait time.Duration
}

// New constructs a Driver. It does not start any goroutines; call Run to
// start the dispatcher and hardware loops.
func New(id string, sink Sink, cfg Config) (*Driver, error) {
	if cfg.Callbacks == nil {
		cfg.Callbacks = DefaultCallbacks{}
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	drainTimeout := cfg.HardwareDrainTimeout
	if drainTimeout == 0 {
		drainTimeout = 5 * time.Second
	}

	autoGet := true
	if cfg.AutoGetProperties != nil {
		autoGet = *cfg.AutoGetProperties
	}

	d := &Driver{
		id:           id,
		log:          cfg.Log,
		fs:           cfg.Fs,
		callbacks:    cfg.Callbacks,
		userData:     cfg.UserData,
		sink:         sink,
		devices:      map[string]*indi.Device{},
		autoGetProp:  autoGet,
		inbound:      make(chan indi.Event, queueCapacity),
		snoopInbound: make(chan indi.Event, queueCapacity),
		snoopDevices: map[string]bool{},
		snoopVectors: map[string]bool{},
		sentVals:     map[string]map[string]string{},
		stop:         make(chan struct{}),
		drainWait:    drainTimeout,
	}

	for _, dev := range cfg.Devices {
		if _, exists := d.devices[dev.Name]; exists {
			return nil, fmt.Errorf("driver: duplicate device %q", dev.Name)
		}
		d.devices[dev.Name] = dev
	}

	return d, nil
}

// ID returns the driver's identity, used for snoop/origin bookkeeping.
func (d *Driver) ID() string { return d.id }

// UserData returns the opaque bag passed in Config.
func (d *Driver) UserData() interface{} { return d.userData }

// Device looks up one of this driver's devices.
func (d *Driver) Device(name string) (*indi.Device, bool) {
	dev, ok := d.devices[name]
	return dev, ok
}

// OwnsDevice reports whether name is one of this driver's devices.
func (d *Driver) OwnsDevice(name string) bool {
	_, ok := d.devices[name]
	return ok
}

// Devices returns every device this driver owns.
func (d *Driver) Devices() []*indi.Device {
	out := make([]*indi.Device, 0, len(d.devices))
	for _, dev := range d.devices {
		out = append(out, dev)
	}
	return out
}

// Run starts the dispatcher, snoop-dispatcher and hardware goroutines and
// blocks until ctx is cancelled or Stop is called, and they have drained.
func (d *Driver) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	d.wg.Add(3)

	go func() {
		defer d.wg.Done()
		d.dispatchInbound(ctx)
	}()

	go func() {
		defer d.wg.Done()
		d.dispatchSnoop(ctx)
	}()

	go func() {
		defer d.wg.Done()
		d.callbacks.OnHardware(ctx, d)
	}()

	<-ctx.Done()
	d.awaitDrain()
}

func (d *Driver) awaitDrain() {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.drainWait):
		if d.log != nil {
			d.log.WithField("driver", d.id).Warn("driver: hardware/dispatch tasks did not drain before timeout")
		}
	}
}

// Stop requests shutdown: it cancels the context Run hands to OnHardware
// and the dispatchers, with the same effect as cancelling Run's own ctx.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Deliver enqueues an inbound client event for dispatch. It is called by
// the server router; a full queue applies backpressure to the caller
// without blocking any other driver or connection, since each driver's
// queue is independent.
func (d *Driver) Deliver(ctx context.Context, ev indi.Event) {
	select {
	case d.inbound <- ev:
	case <-ctx.Done():
	}
}

// DeliverSnoop enqueues a snoop-observed event for this driver's snoop dispatcher.
func (d *Driver) DeliverSnoop(ctx context.Context, ev indi.Event) {
	select {
	case d.snoopInbound <- ev:
	case <-ctx.Done():
	}
}

func (d *Driver) dispatchInbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.inbound:
			d.handleRxEvent(ctx, ev)
		}
	}
}

func (d *Driver) dispatchSnoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.snoopInbound:
			d.callbacks.OnSnoopEvent(ctx, d, ev)
		}
	}
}

func (d *Driver) handleRxEvent(ctx context.Context, ev indi.Event) {
	switch ev.Kind {
	case indi.EventGetProperties:
		if d.autoGetProp {
			d.emitDefsFor(ev.Device, ev.Vector)
			return
		}
	case indi.EventEnableBlob:
		// enableBLOB is a connection-level policy concern handled entirely
		// by the server/connection layer; the driver never sees its effect.
		return
	case indi.EventNewSwitchVector, indi.EventNewTextVector, indi.EventNewNumberVector, indi.EventNewBlobVector:
		if !d.validateNewVectorEvent(ev) {
			return
		}
		if ev.Kind == indi.EventNewBlobVector {
			d.persistBlobs(ev.Device, ev.Vector, ev.Blobs)
		}
	}

	d.callbacks.OnRxEvent(ctx, d, ev)
}

// validateNewVectorEvent rejects a client update before handing it to
// user code: unknown/disabled/wrong-type/read-only targets are dropped
// with a log, never delivered.
func (d *Driver) validateNewVectorEvent(ev indi.Event) bool {
	dev, ok := d.devices[ev.Device]
	if !ok || !dev.Enable {
		d.logDrop(ev, "unknown or disabled device")
		return false
	}

	v, ok := dev.Vector(ev.Vector)
	if !ok || !v.Enable {
		d.logDrop(ev, "unknown or disabled vector")
		return false
	}

	wantKind := map[indi.EventKind]indi.VectorKind{
		indi.EventNewSwitchVector: indi.KindSwitch,
		indi.EventNewTextVector:   indi.KindText,
		indi.EventNewNumberVector: indi.KindNumber,
		indi.EventNewBlobVector:   indi.KindBLOB,
	}[ev.Kind]

	if v.Kind != wantKind {
		d.logDrop(ev, "vector type mismatch")
		return false
	}

	if v.Perm == indi.PermReadOnly {
		d.logDrop(ev, "vector is read-only")
		return false
	}

	return true
}

func (d *Driver) logDrop(ev indi.Event, reason string) {
	if d.log != nil {
		d.log.WithField("device", ev.Device).WithField("vector", ev.Vector).WithField("reason", reason).Warn("driver: dropping new vector event")
	}
}

func (d *Driver) emitDefsFor(device, vector string) {
	for _, dev := range d.devices {
		if device != "" && dev.Name != device {
			continue
		}
		if !dev.Enable {
			continue
		}
		for _, v := range dev.Vectors() {
			if vector != "" && v.Name != vector {
				continue
			}
			if !v.Enable {
				continue
			}
			d.publish(dev.Name, v.Name, indi.BuildDefElement(v, d.readBlobPayloads(v)))
		}
	}
}

func (d *Driver) readBlobPayloads(v *indi.Vector) map[string][]byte {
	if v.Kind != indi.KindBLOB {
		return nil
	}
	out := map[string][]byte{}
	for _, m := range v.OrderedMembers() {
		if m.BlobPath == "" {
			continue
		}
		b, err := afero.ReadFile(d.fs, m.BlobPath)
		if err != nil {
			if d.log != nil {
				d.log.WithField("path", m.BlobPath).WithError(err).Warn("driver: could not read blob payload")
			}
			continue
		}
		out[m.Name] = b
	}
	return out
}

// persistBlobs decodes and writes each member's base64 payload to the
// driver's filesystem, naming the file "<device>_<vector>_<member><format>",
// and fills in Path so the event the callback sees points at the file
// instead of carrying the raw wire string.
func (d *Driver) persistBlobs(device, vector string, blobs map[string]indi.BlobMemberUpdate) {
	for name, b := range blobs {
		if b.Value == "" {
			continue
		}

		payload, err := b.DecodedValue()
		if err != nil {
			if d.log != nil {
				d.log.WithField("member", name).WithError(err).Warn("driver: could not decode blob payload")
			}
			continue
		}

		fname := fmt.Sprintf("%s_%s_%s%s", device, vector, name, b.Format)
		if err := afero.WriteFile(d.fs, fname, payload, 0666); err != nil {
			if d.log != nil {
				d.log.WithField("file", fname).WithError(err).Warn("driver: could not write blob payload")
			}
			continue
		}

		b.Path = fname
		b.Value = ""
		blobs[name] = b
	}
}

func (d *Driver) publish(device, vector string, el indi.Element) {
	if d.sink != nil {
		d.sink.Publish(d.id, device, vector, el)
	}
}

// NumberToFloat parses a NumberVector member's wire string, surfacing
// parse failure as a *indi.NumberFormatError the callback can catch
// rather than a panic or driver termination.
func (d *Driver) NumberToFloat(s string) (float64, error) {
	return indi.ParseNumber(s)
}
