package server

import (
	"bufio"
	"io"
	"os/exec"
	"sync"

	"github.com/astrogo/indiserver/indi"
	"github.com/google/uuid"
)

// stdioPipe adapts a subprocess's stdin/stdout pair to io.ReadWriteCloser
// so it can be driven by the same endpoint reader/writer used for client
// sockets and remote dials.
type stdioPipe struct {
	stdout io.ReadCloser
	stdin  io.WriteCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p stdioPipe) Close() error {
	err1 := p.stdin.Close()
	err2 := p.stdout.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// subprocessDriver is a driver launched as a child process: its device
// graph is unknown until it announces itself over stdio with
// defXxxVector, at which point the router learns ownership dynamically.
type subprocessDriver struct {
	id   string
	path string
	args []string

	ep  *endpoint
	cmd *exec.Cmd

	mu      sync.Mutex
	devices map[string]bool
}

// AddSubprocessDriver launches path as a child process and wires its
// stdio into the router exactly like a client connection, except outbound
// BLOB policy defaults to Also and ownership of any device it
// subsequently defines is attributed to it rather than to a remote or a
// client.
func (s *Server) AddSubprocessDriver(path string, args ...string) error {
	cmd := exec.Command(path, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	sp := &subprocessDriver{
		id:      uuid.New().String(),
		path:    path,
		args:    args,
		cmd:     cmd,
		devices: map[string]bool{},
	}
	sp.ep = newEndpoint(KindDriverSubprocess, stdioPipe{stdout: stdout, stdin: stdin}, s.log, indi.BlobAlso, s.cfg.DrainTimeout)

	s.mu.Lock()
	s.subprocs[sp.id] = sp
	s.mu.Unlock()

	go s.forwardSubprocessStderr(sp, stderr)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sp.ep.writeLoop(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.runSubprocess(sp)
	}()

	return nil
}

func (s *Server) forwardSubprocessStderr(sp *subprocessDriver, stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if s.log != nil {
			s.log.WithField("subprocess", sp.path).Info(scanner.Text())
		}
	}
}

func (s *Server) runSubprocess(sp *subprocessDriver) {
	sp.ep.readLoop(s.ctx, func(kind Kind, srcID string, el indi.Element) {
		device, vector := indi.ElementTarget(el)
		s.learnSubprocessDevice(sp, el.Kind, device)
		s.routeFromDriver(sp.id, device, vector, el)
	})

	// readLoop returned: either the process exited or the connection was
	// torn down. Either way this subprocess's devices are gone; there is
	// no auto-restart, so they are removed with delProperty.
	s.retireSubprocess(sp)
}

func (s *Server) learnSubprocessDevice(sp *subprocessDriver, kind indi.ElementKind, device string) {
	switch kind {
	case indi.KindDefTextVector, indi.KindDefNumberVector, indi.KindDefSwitchVector, indi.KindDefLightVector, indi.KindDefBlobVector:
		if device == "" {
			return
		}
		sp.mu.Lock()
		alreadyKnown := sp.devices[device]
		sp.devices[device] = true
		sp.mu.Unlock()

		if !alreadyKnown {
			s.mu.Lock()
			if _, exists := s.deviceOwner[device]; !exists {
				s.deviceOwner[device] = ownerRef{kind: KindDriverSubprocess, subprocID: sp.id}
			} else if s.log != nil {
				s.log.WithField("device", device).WithField("subprocess", sp.id).Warn("server: ignoring device announced by a different owner")
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) retireSubprocess(sp *subprocessDriver) {
	s.mu.Lock()
	delete(s.subprocs, sp.id)
	sp.mu.Lock()
	owned := make([]string, 0, len(sp.devices))
	for dev := range sp.devices {
		if owner, ok := s.deviceOwner[dev]; ok && owner.kind == KindDriverSubprocess && owner.subprocID == sp.id {
			owned = append(owned, dev)
		}
	}
	sp.mu.Unlock()
	for _, dev := range owned {
		delete(s.deviceOwner, dev)
	}
	s.mu.Unlock()

	sp.ep.Close()
	_ = sp.cmd.Wait()

	for _, dev := range owned {
		s.broadcastToClients(indi.BuildDelPropertyElement(dev, ""), dev, "", "")
	}

	if s.log != nil {
		s.log.WithField("subprocess", sp.path).Warn("server: subprocess driver exited, devices removed")
	}
}
