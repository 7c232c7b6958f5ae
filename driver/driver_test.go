package driver

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/astrogo/indiserver/indi"
	"github.com/rickbassham/logging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu          sync.Mutex
	published   []indi.Element
	subscribed  []string
}

func (f *fakeSink) Publish(originID, device, vector string, el indi.Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, el)
}

func (f *fakeSink) Subscribe(device, vector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, vectorKey(device, vector))
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func testLog() logging.Logger {
	return logging.NewLogger(os.Stdout, logging.JSONFormatter{}, logging.LogLevelInfo)
}

func thermostatDevice(t *testing.T) *indi.Device {
	t.Helper()
	dev := indi.NewDevice("Thermostat")
	v := indi.NewVector(indi.KindNumber, "temperaturevector", "", "", indi.StateOk, indi.PermReadOnly)
	require.NoError(t, v.AddMember(indi.Member{Name: "temperature", Value: "20.0", Format: "%3.1f", Min: "-50", Max: "99"}))
	require.NoError(t, dev.AddVector(v))

	target := indi.NewVector(indi.KindNumber, "targetvector", "", "", indi.StateOk, indi.PermReadWrite)
	require.NoError(t, target.AddMember(indi.Member{Name: "target", Value: "15"}))
	require.NoError(t, dev.AddVector(target))

	return dev
}

func TestDriver_AutoGetProperties_EmitsDefAndSuppressesCallback(t *testing.T) {
	sink := &fakeSink{}
	var gotRx bool

	dev := thermostatDevice(t)
	d, err := New("thermostat-driver", sink, Config{
		Devices: []*indi.Device{dev},
		Log:     testLog(),
		Fs:      afero.NewMemMapFs(),
		Callbacks: callbackFuncs{
			onRx: func(ctx context.Context, dr *Driver, ev indi.Event) { gotRx = true },
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Deliver(ctx, indi.Event{Kind: indi.EventGetProperties, Device: "Thermostat"})

	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 10*time.Millisecond)
	assert.False(t, gotRx, "getProperties must be auto-handled, not delivered to OnRxEvent")
}

func TestDriver_NewNumberVector_DeliversToCallback(t *testing.T) {
	sink := &fakeSink{}
	received := make(chan indi.Event, 1)

	dev := thermostatDevice(t)
	d, err := New("thermostat-driver", sink, Config{
		Devices: []*indi.Device{dev},
		Log:     testLog(),
		Fs:      afero.NewMemMapFs(),
		Callbacks: callbackFuncs{
			onRx: func(ctx context.Context, dr *Driver, ev indi.Event) { received <- ev },
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Deliver(ctx, indi.Event{Kind: indi.EventNewNumberVector, Device: "Thermostat", Vector: "targetvector", Values: map[string]string{"target": "40"}})

	select {
	case ev := <-received:
		f, err := d.NumberToFloat(ev.Values["target"])
		require.NoError(t, err)
		assert.Equal(t, 40.0, f)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnRxEvent")
	}
}

func TestDriver_NewNumberVector_RejectsReadOnlyVector(t *testing.T) {
	sink := &fakeSink{}
	received := make(chan indi.Event, 1)

	dev := thermostatDevice(t)
	d, err := New("thermostat-driver", sink, Config{
		Devices: []*indi.Device{dev},
		Log:     testLog(),
		Fs:      afero.NewMemMapFs(),
		Callbacks: callbackFuncs{
			onRx: func(ctx context.Context, dr *Driver, ev indi.Event) { received <- ev },
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Deliver(ctx, indi.Event{Kind: indi.EventNewNumberVector, Device: "Thermostat", Vector: "temperaturevector", Values: map[string]string{"temperature": "99"}})

	select {
	case <-received:
		t.Fatal("read-only vector update must be dropped, not delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDriver_SendSetVector_Idempotence(t *testing.T) {
	sink := &fakeSink{}
	dev := thermostatDevice(t)
	d, err := New("d", sink, Config{Devices: []*indi.Device{dev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	target, _ := dev.Vector("targetvector")
	d.SendSetVector(target, false)
	assert.Equal(t, 1, sink.count(), "first send with unseen values must transmit")

	d.SendSetVector(target, false)
	assert.Equal(t, 1, sink.count(), "no value change must emit nothing")

	d.SendSetVectorMembers(target, nil)
	assert.Equal(t, 2, sink.count(), "members=nil must always emit exactly one envelope")
}

func TestDriver_SendGetProperties_RefusesOwnDevice(t *testing.T) {
	sink := &fakeSink{}
	dev := thermostatDevice(t)
	d, err := New("d", sink, Config{Devices: []*indi.Device{dev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	d.SendGetProperties("Thermostat", "")
	assert.False(t, d.MatchesSnoop("Thermostat", "temperaturevector"))
	assert.Empty(t, sink.subscribed)
}

func TestDriver_SendGetProperties_RecordsSnoopSubscription(t *testing.T) {
	sink := &fakeSink{}
	dev := thermostatDevice(t)
	d, err := New("w", sink, Config{Devices: []*indi.Device{dev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	d.SendGetProperties("Other", "vec")
	assert.True(t, d.MatchesSnoop("Other", "vec"))
	assert.False(t, d.MatchesSnoop("Other", "other-vec"))
	require.Len(t, sink.subscribed, 1)
}

func TestDriver_NewBlobVector_PersistsPayloadAndSetsPath(t *testing.T) {
	sink := &fakeSink{}
	received := make(chan indi.Event, 1)

	dev := indi.NewDevice("Camera")
	v := indi.NewVector(indi.KindBLOB, "image", "", "", indi.StateOk, indi.PermReadWrite)
	require.NoError(t, v.AddMember(indi.Member{Name: "frame"}))
	require.NoError(t, dev.AddVector(v))

	fs := afero.NewMemMapFs()
	d, err := New("camera-driver", sink, Config{
		Devices: []*indi.Device{dev},
		Log:     testLog(),
		Fs:      fs,
		Callbacks: callbackFuncs{
			onRx: func(ctx context.Context, dr *Driver, ev indi.Event) { received <- ev },
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Deliver(ctx, indi.Event{
		Kind: indi.EventNewBlobVector, Device: "Camera", Vector: "image",
		Blobs: map[string]indi.BlobMemberUpdate{"frame": {Format: ".fits", Size: 4, Value: "dGVzdA=="}},
	})

	select {
	case ev := <-received:
		b := ev.Blobs["frame"]
		assert.Empty(t, b.Value, "payload must be cleared once persisted")
		assert.NotEmpty(t, b.Path)

		got, err := afero.ReadFile(fs, b.Path)
		require.NoError(t, err)
		assert.Equal(t, "test", string(got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnRxEvent")
	}
}

// callbackFuncs lets tests plug in individual callback functions without
// declaring a new named type per test.
type callbackFuncs struct {
	DefaultCallbacks
	onRx func(ctx context.Context, d *Driver, ev indi.Event)
}

func (c callbackFuncs) OnRxEvent(ctx context.Context, d *Driver, ev indi.Event) {
	if c.onRx != nil {
		c.onRx(ctx, d, ev)
	}
}
