package adxl

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Device is one attached ADXL346. It is created by Namespace.Attach and
// stays usable until Detach. Open, Attached and Detach accept a nil Device,
// so a failed Attach can never be turned into a usable channel.
type Device struct {
	ns    *Namespace
	bus   Transport
	key   string
	name  string
	minor int

	mu       sync.Mutex
	attached bool
	sessions int
}

func (d *Device) Name() string { return d.name }
func (d *Device) Minor() int   { return d.minor }
func (d *Device) Key() string  { return d.key }

// Attached reports whether d is between a confirmed identity read and Detach.
func (d *Device) Attached() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Open binds a new session to d. It has no hardware side effect.
func (d *Device) Open() (*Session, error) {
	if d == nil {
		return nil, fmt.Errorf("open: %w", ErrNotAttached)
	}
	d.mu.Lock()
	if !d.attached {
		d.mu.Unlock()
		return nil, fmt.Errorf("open %s: %w", d.name, ErrNotAttached)
	}
	d.sessions++
	d.mu.Unlock()

	s := &Session{id: uuid.New(), dev: d}
	slog.Debug("Session opened", "device", d.name, "session", s.id)
	return s, nil
}

// Detach unregisters d from its namespace and releases its minor number.
// It fails with ErrDeviceBusy while sessions are open. Detaching an already
// detached device is a no-op.
func (d *Device) Detach() error {
	if d == nil || d.ns == nil {
		return nil
	}
	return d.ns.detach(d, false)
}

func (d *Device) release() {
	d.mu.Lock()
	if d.sessions > 0 {
		d.sessions--
	}
	d.mu.Unlock()
}

// Session is one consumer's channel to a Device, between Open and Close.
//
// Read and Write each perform one synchronous bus transaction. Sessions on
// the same device are not serialised against each other; callers that share
// a device across goroutines must order their transactions themselves.
type Session struct {
	id     uuid.UUID
	dev    *Device
	closed atomic.Bool
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Device() *Device { return s.dev }

func (s *Session) check(op string) error {
	if s == nil || s.closed.Load() {
		return fmt.Errorf("%s: %w", op, ErrSessionClosed)
	}
	if !s.dev.Attached() {
		return fmt.Errorf("%s %s: %w", op, s.dev.name, ErrNotAttached)
	}
	return nil
}

// Read fills p with one raw axis sample. Buffers shorter than SampleSize
// yield (0, nil) without touching the bus; longer buffers receive exactly
// SampleSize bytes.
func (s *Session) Read(p []byte) (int, error) {
	if err := s.check("read"); err != nil {
		return 0, err
	}
	if len(p) < SampleSize {
		return 0, nil
	}
	sample, err := s.ReadSample()
	if err != nil {
		return 0, err
	}
	return copy(p, sample[:]), nil
}

// ReadSample performs the burst read of DATAX0..DATAZ1.
func (s *Session) ReadSample() (Sample, error) {
	var sample Sample
	if err := s.check("read"); err != nil {
		return sample, err
	}
	rx, err := s.dev.bus.WriteThenRead([]byte{ReadMulti.Command(DataX0)}, SampleSize)
	if err != nil {
		return sample, fmt.Errorf("read %s: %w: %w", s.dev.name, ErrDeviceUnavailable, err)
	}
	if len(rx) != SampleSize {
		return sample, fmt.Errorf("read %s: %w: short response (%d bytes)", s.dev.name, ErrDeviceUnavailable, len(rx))
	}
	copy(sample[:], rx)
	return sample, nil
}

// ReadTo reads one sample and writes it to w. If w rejects the sample the
// read counts as zero bytes and ErrCopyFailed is returned.
func (s *Session) ReadTo(w io.Writer) (int, error) {
	sample, err := s.ReadSample()
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(sample[:]); err != nil {
		return 0, fmt.Errorf("read %s: %w: %w", s.dev.name, ErrCopyFailed, err)
	}
	return SampleSize, nil
}

// Write performs a single-register write. p must be exactly
// [register, value].
func (s *Session) Write(p []byte) (int, error) {
	if err := s.check("write"); err != nil {
		return 0, err
	}
	if len(p) != 2 {
		return 0, fmt.Errorf("write %s: %d bytes: %w", s.dev.name, len(p), ErrInvalidArgument)
	}
	tx := []byte{WriteSingle.Command(Register(p[0])), p[1]}
	if err := s.dev.bus.Write(tx); err != nil {
		return 0, fmt.Errorf("write %s: %w: %w", s.dev.name, ErrDeviceUnavailable, err)
	}
	return len(p), nil
}

// WriteFrom reads a [register, value] pair from r and writes it. A failing
// reader is reported as ErrOutOfMemory.
func (s *Session) WriteFrom(r io.Reader) (int, error) {
	if err := s.check("write"); err != nil {
		return 0, err
	}
	// One byte past the pair is enough to reject oversized input.
	buf, err := io.ReadAll(io.LimitReader(r, 3))
	if err != nil {
		return 0, fmt.Errorf("write %s: %w: %w", s.dev.name, ErrOutOfMemory, err)
	}
	return s.Write(buf)
}

// WriteRegister is Write for callers that hold a Register.
func (s *Session) WriteRegister(reg Register, value byte) error {
	_, err := s.Write([]byte{byte(reg), value})
	return err
}

// Close releases the session. Closing twice is a no-op.
func (s *Session) Close() error {
	if s == nil || s.closed.Swap(true) {
		return nil
	}
	s.dev.release()
	slog.Debug("Session closed", "device", s.dev.name, "session", s.id)
	return nil
}
