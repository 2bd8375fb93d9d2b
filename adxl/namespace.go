package adxl

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/exp/slices"
)

// LogicalName is the name under which the first chip of a namespace is
// exposed. Further chips get the minor number appended.
const LogicalName = "adxl346"

// Namespace hands out minor numbers and logical names to attached devices.
// It must be initialised before the first Attach and torn down after the
// last Detach; both transitions happen once per cycle and repeated calls are
// no-ops.
type Namespace struct {
	class     string
	maxMinors int

	mu          sync.Mutex
	initialised bool
	byMinor     map[int]*Device
	byName      map[string]*Device
	byKey       map[string]*Device
}

// Default is the process-wide namespace used by the daemon.
var Default = NewNamespace("adxl", 16)

// NewNamespace creates an uninitialised namespace with room for maxMinors
// devices.
func NewNamespace(class string, maxMinors int) *Namespace {
	return &Namespace{
		class:     class,
		maxMinors: maxMinors,
	}
}

func (n *Namespace) Class() string {
	return n.class
}

// Init validates the register map and opens the namespace for attachment.
func (n *Namespace) Init() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initialised {
		return nil
	}
	if err := validateRegisterMap(registerMap); err != nil {
		return fmt.Errorf("namespace %s: %w", n.class, err)
	}
	n.byMinor = make(map[int]*Device, n.maxMinors)
	n.byName = make(map[string]*Device, n.maxMinors)
	n.byKey = make(map[string]*Device, n.maxMinors)
	n.initialised = true
	slog.Debug("Device namespace initialised", "class", n.class)
	return nil
}

// Teardown detaches every remaining device and closes the namespace.
// Devices with open sessions are detached anyway; their sessions fail on
// next use.
func (n *Namespace) Teardown() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialised {
		return
	}
	for _, dev := range n.devicesLocked() {
		if err := n.detachLocked(dev, true); err != nil {
			slog.Warn("Error detaching device during teardown", "device", dev.name, "error", err)
		}
	}
	n.byMinor, n.byName, n.byKey = nil, nil, nil
	n.initialised = false
	slog.Debug("Device namespace torn down", "class", n.class)
}

// Attach probes the chip behind bus and, if its identity register reads
// DeviceID, registers it under a fresh minor number. key identifies the
// attachment point (typically the configured device name) and must be
// unique among attached devices.
func (n *Namespace) Attach(key string, bus Transport) (*Device, error) {
	if !n.isInitialised() {
		return nil, fmt.Errorf("attach %s: %w", key, ErrNotInitialised)
	}

	id, err := readIdentity(bus)
	if err != nil {
		return nil, fmt.Errorf("attach %s: read identity: %w", key, err)
	}
	if id != DeviceID {
		return nil, fmt.Errorf("attach %s: read 0x%02x, want 0x%02x: %w", key, id, DeviceID, ErrIdentityMismatch)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialised {
		return nil, fmt.Errorf("attach %s: %w", key, ErrNotInitialised)
	}
	if _, taken := n.byKey[key]; taken {
		return nil, fmt.Errorf("attach %s: %w", key, ErrAlreadyAttached)
	}
	minor := n.freeMinorLocked()
	if minor < 0 {
		return nil, fmt.Errorf("attach %s: %d devices: %w", key, n.maxMinors, ErrNamespaceFull)
	}

	dev := &Device{
		ns:       n,
		bus:      bus,
		key:      key,
		name:     nameForMinor(minor),
		minor:    minor,
		attached: true,
	}
	n.byMinor[minor] = dev
	n.byName[dev.name] = dev
	n.byKey[key] = dev

	slog.Info("adxl346 device registered", "device", dev.name, "minor", minor, "key", key)
	return dev, nil
}

// Lookup returns the attached device exposed under name.
func (n *Namespace) Lookup(name string) (*Device, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	dev, ok := n.byName[name]
	return dev, ok
}

// Devices returns all attached devices ordered by minor number.
func (n *Namespace) Devices() []*Device {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.devicesLocked()
}

func (n *Namespace) devicesLocked() []*Device {
	devs := make([]*Device, 0, len(n.byMinor))
	for _, dev := range n.byMinor {
		devs = append(devs, dev)
	}
	slices.SortFunc(devs, func(a, b *Device) int { return a.minor - b.minor })
	return devs
}

func (n *Namespace) isInitialised() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initialised
}

func (n *Namespace) freeMinorLocked() int {
	for minor := 0; minor < n.maxMinors; minor++ {
		if _, used := n.byMinor[minor]; !used {
			return minor
		}
	}
	return -1
}

func (n *Namespace) detach(dev *Device, force bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.detachLocked(dev, force)
}

func (n *Namespace) detachLocked(dev *Device, force bool) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if !dev.attached {
		return nil
	}
	if dev.sessions > 0 && !force {
		return fmt.Errorf("detach %s: %d open sessions: %w", dev.name, dev.sessions, ErrDeviceBusy)
	}
	dev.attached = false
	if n.byMinor[dev.minor] == dev {
		delete(n.byMinor, dev.minor)
		delete(n.byName, dev.name)
		delete(n.byKey, dev.key)
	}
	slog.Info("adxl346 device removed", "device", dev.name, "minor", dev.minor)
	return nil
}

func nameForMinor(minor int) string {
	if minor == 0 {
		return LogicalName
	}
	return fmt.Sprintf("%s-%d", LogicalName, minor)
}

func readIdentity(bus Transport) (byte, error) {
	rx, err := bus.WriteThenRead([]byte{ReadSingle.Command(DevID)}, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if len(rx) != 1 {
		return 0, fmt.Errorf("%w: short identity response (%d bytes)", ErrDeviceUnavailable, len(rx))
	}
	return rx[0], nil
}
