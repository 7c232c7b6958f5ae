package server

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/astrogo/indiserver/driver"
	"github.com/astrogo/indiserver/indi"
	"github.com/rickbassham/logging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() logging.Logger {
	return logging.NewLogger(os.Stdout, logging.JSONFormatter{}, logging.LogLevelInfo)
}

// memConn is an in-memory io.ReadWriteCloser pair used to attach fake
// endpoints directly, without binding a real TCP listener.
type memConn struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	closed chan struct{}
	once   sync.Once
}

func newMemConnPair() (*memConn, *memConn) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	a := &memConn{r: r1, w: w2, closed: make(chan struct{})}
	b := &memConn{r: r2, w: w1, closed: make(chan struct{})}
	return a, b
}

func (m *memConn) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *memConn) Write(p []byte) (int, error) { return m.w.Write(p) }
func (m *memConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	_ = m.r.Close()
	return m.w.Close()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := New(Config{Log: testLog(), DestinationTimeout: 200 * time.Millisecond, DrainTimeout: 200 * time.Millisecond})
	t.Cleanup(srv.Shutdown)
	return srv
}

// attachClient wires a fake client endpoint into srv without a real
// socket, returning the other end of the pipe for the test to read/write.
func attachClient(t *testing.T, srv *Server) *memConn {
	t.Helper()
	serverSide, testSide := newMemConnPair()

	ep := newEndpoint(KindClientSocket, serverSide, srv.log, indi.BlobNever, srv.cfg.DrainTimeout)
	srv.mu.Lock()
	srv.clients[ep.id] = ep
	srv.mu.Unlock()

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		ep.writeLoop(srv.ctx)
	}()
	go ep.readLoop(srv.ctx, func(kind Kind, srcID string, el indi.Element) {
		srv.routeFromClient(ep, el)
	})

	return testSide
}

func readElement(t *testing.T, conn *memConn) indi.Element {
	t.Helper()
	dec := indi.NewDecoder(conn, nil)
	el, err := dec.Next()
	require.NoError(t, err)
	return el
}

func thermostatDevice(t *testing.T) *indi.Device {
	t.Helper()
	dev := indi.NewDevice("Thermostat")
	target := indi.NewVector(indi.KindNumber, "targetvector", "", "", indi.StateOk, indi.PermReadWrite)
	require.NoError(t, target.AddMember(indi.Member{Name: "target", Value: "15"}))
	require.NoError(t, dev.AddVector(target))
	return dev
}

func TestServer_RouteFromDriver_FansOutToClients(t *testing.T) {
	srv := newTestServer(t)
	a := attachClient(t, srv)
	defer a.Close()

	dev := thermostatDevice(t)
	d, err := driver.New("d1", srv, driver.Config{Devices: []*indi.Device{dev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	require.NoError(t, srv.AddDriver(d))

	v, _ := dev.Vector("targetvector")
	d.SendDefVector(v)

	el := readElement(t, a)
	assert.Equal(t, indi.KindDefNumberVector, el.Kind)
}

func TestServer_RouteGetProperties_AutoHandledByOwningDriver(t *testing.T) {
	srv := newTestServer(t)
	a := attachClient(t, srv)
	defer a.Close()

	dev := thermostatDevice(t)
	d, err := driver.New("d1", srv, driver.Config{Devices: []*indi.Device{dev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	require.NoError(t, srv.AddDriver(d))

	enc := indi.NewEncoder(a)
	require.NoError(t, enc.Encode(indi.BuildGetPropertiesElement("Thermostat", "")))

	el := readElement(t, a)
	assert.Equal(t, indi.KindDefNumberVector, el.Kind)
}

func TestServer_BlobPolicy_DefBlobVectorAdmittedUnderNever(t *testing.T) {
	srv := newTestServer(t)
	a := attachClient(t, srv)
	defer a.Close()

	dev := indi.NewDevice("Camera")
	v := indi.NewVector(indi.KindBLOB, "CCD1", "", "", indi.StateOk, indi.PermReadOnly)
	require.NoError(t, v.AddMember(indi.Member{Name: "CCD1", BlobPath: ""}))
	require.NoError(t, dev.AddVector(v))

	d, err := driver.New("cam", srv, driver.Config{Devices: []*indi.Device{dev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	require.NoError(t, srv.AddDriver(d))

	// default policy is BlobNever: defBLOBVector (not itself a BLOB
	// payload) should still arrive even though the policy blocks payloads.
	d.SendDefVector(v)
	el := readElement(t, a)
	assert.Equal(t, indi.KindDefBlobVector, el.Kind)
}

func TestServer_StalledClient_DoesNotBlockSiblings(t *testing.T) {
	srv := newTestServer(t)
	slow := attachClient(t, srv)
	defer slow.Close()
	fast := attachClient(t, srv)
	defer fast.Close()

	dev := thermostatDevice(t)
	d, err := driver.New("d1", srv, driver.Config{Devices: []*indi.Device{dev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	require.NoError(t, srv.AddDriver(d))

	v, _ := dev.Vector("targetvector")
	for i := 0; i < 10; i++ {
		d.SendDefVector(v)
	}

	el := readElement(t, fast)
	assert.Equal(t, indi.KindDefNumberVector, el.Kind)
}

func TestServer_SnoopFanout_OnlyToSubscribedDriver(t *testing.T) {
	srv := newTestServer(t)

	producerDev := thermostatDevice(t)
	producer, err := driver.New("producer", srv, driver.Config{Devices: []*indi.Device{producerDev}, Log: testLog(), Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	require.NoError(t, srv.AddDriver(producer))

	watcherDev := indi.NewDevice("Watcher")
	snooped := make(chan indi.Event, 1)
	watcher, err := driver.New("watcher", srv, driver.Config{
		Devices: []*indi.Device{watcherDev},
		Log:     testLog(),
		Fs:      afero.NewMemMapFs(),
		Callbacks: snoopCallback{onSnoop: func(ev indi.Event) { snooped <- ev }},
	})
	require.NoError(t, err)
	require.NoError(t, srv.AddDriver(watcher))

	watcher.SendGetProperties("Thermostat", "targetvector")

	v, _ := producerDev.Vector("targetvector")
	producer.SendDefVector(v)

	select {
	case ev := <-snooped:
		assert.Equal(t, "Thermostat", ev.Device)
	case <-time.After(time.Second):
		t.Fatal("watcher never received snooped event")
	}
}

type snoopCallback struct {
	driver.DefaultCallbacks
	onSnoop func(indi.Event)
}

func (c snoopCallback) OnSnoopEvent(ctx context.Context, d *driver.Driver, ev indi.Event) {
	if c.onSnoop != nil {
		c.onSnoop(ev)
	}
}
