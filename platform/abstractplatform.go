package platform

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/slices"
	"lautenbacher.net/adxld/adxl"
	c "lautenbacher.net/adxld/config"
	u "lautenbacher.net/adxld/util"
)

// busOpener returns the transport for one configured device.
type busOpener func(name string, cfg c.DeviceConfig) (adxl.Transport, error)

// AbstractPlatform holds everything the real and simulated platforms share:
// discovery, register initialisation, sampling and teardown.
type AbstractPlatform struct {
	config          *c.Config
	ns              *adxl.Namespace
	openBus         busOpener
	devices         map[string]*adxl.Device
	samples         *u.AtomicMapEvent[adxl.Sample]
	sampleViewer    *SampleViewer
	viewerStopChan  chan struct{}
	viewerWg        sync.WaitGroup
	samplerWg       sync.WaitGroup
	samplerStopChan chan bool
	readyChan       chan bool
	shutdownMutex   sync.RWMutex
	isShuttingDown  bool
}

func newAbstractPlatform(conf *c.Config, ns *adxl.Namespace) *AbstractPlatform {
	return &AbstractPlatform{
		config:          conf,
		ns:              ns,
		devices:         make(map[string]*adxl.Device),
		samples:         u.NewAtomicMapEvent[adxl.Sample](),
		viewerStopChan:  make(chan struct{}),
		samplerStopChan: make(chan bool),
		readyChan:       make(chan bool),
	}
}

func (s *AbstractPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *AbstractPlatform) Samples() *u.AtomicMapEvent[adxl.Sample] {
	return s.samples
}

func (s *AbstractPlatform) Devices() []*adxl.Device {
	devs := make([]*adxl.Device, 0, len(s.devices))
	for _, dev := range s.devices {
		devs = append(devs, dev)
	}
	slices.SortFunc(devs, func(a, b *adxl.Device) int { return a.Minor() - b.Minor() })
	return devs
}

// SetSampleViewer attaches an optional TUI viewer for sample data.
func (s *AbstractPlatform) SetSampleViewer(v *SampleViewer) {
	s.sampleViewer = v
}

func (s *AbstractPlatform) setInShutdown() {
	s.shutdownMutex.Lock()
	s.isShuttingDown = true
	s.shutdownMutex.Unlock()
}

func (s *AbstractPlatform) inShutdown() bool {
	s.shutdownMutex.RLock()
	defer s.shutdownMutex.RUnlock()
	return s.isShuttingDown
}

// attachDevices probes every configured device in name order. A device that
// cannot be opened or fails the identity check is logged and skipped.
func (s *AbstractPlatform) attachDevices() {
	names := make([]string, 0, len(s.config.Hardware.Devices))
	for name := range s.config.Hardware.Devices {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		bus, err := s.openBus(name, s.config.Hardware.Devices[name])
		if err != nil {
			slog.Error("Failed to open bus", "device", name, "error", err)
			continue
		}
		dev, err := s.ns.Attach(name, bus)
		if err != nil {
			slog.Error("Failed to attach accelerometer", "device", name, "code", adxl.CodeOf(err), "error", err)
			continue
		}
		if err := s.applyInitRegisters(dev); err != nil {
			slog.Error("Failed to initialise registers", "device", dev.Name(), "error", err)
		}
		s.devices[name] = dev
	}

	if len(s.devices) == 0 {
		slog.Warn("No accelerometer attached", "configured", len(names))
	}
}

// applyInitRegisters writes the configured register values in ascending
// register order. POWER_CTL therefore comes after the rate and format
// registers, so measurement starts with the final settings.
func (s *AbstractPlatform) applyInitRegisters(dev *adxl.Device) error {
	if len(s.config.InitRegisters) == 0 {
		return nil
	}
	regs := make([]adxl.Register, 0, len(s.config.InitRegisters))
	values := make(map[adxl.Register]byte, len(s.config.InitRegisters))
	for name, value := range s.config.InitRegisters {
		reg, err := adxl.LookupRegister(name)
		if err != nil {
			return err
		}
		regs = append(regs, reg)
		values[reg] = value
	}
	slices.Sort(regs)

	session, err := dev.Open()
	if err != nil {
		return err
	}
	defer session.Close()

	for _, reg := range regs {
		if err := session.WriteRegister(reg, values[reg]); err != nil {
			return fmt.Errorf("register %s: %w", reg, err)
		}
		slog.Debug("Register initialised", "device", dev.Name(), "register", reg.String(), "value", fmt.Sprintf("0x%02x", values[reg]))
	}
	return nil
}

func (s *AbstractPlatform) startSamplers() {
	if !s.config.Sampling.Enabled {
		return
	}
	for _, dev := range s.Devices() {
		s.samplerWg.Add(1)
		go s.sampler(dev, s.config.Sampling.Interval)
	}
}

func (s *AbstractPlatform) startViewer() {
	if s.sampleViewer == nil {
		return
	}
	s.viewerWg.Add(1)
	go s.sampleViewer.Start(s.samples, s.viewerStopChan, &s.viewerWg)
}

// sampler holds one session on dev and publishes a sample every interval.
func (s *AbstractPlatform) sampler(dev *adxl.Device, interval time.Duration) {
	defer s.samplerWg.Done()

	session, err := dev.Open()
	if err != nil {
		slog.Error("Sampler could not open device", "device", dev.Name(), "error", err)
		return
	}
	defer session.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.samplerStopChan:
			slog.Info("Ending sampler go-routine", "device", dev.Name())
			return
		case <-ticker.C:
			if s.inShutdown() {
				continue
			}
			sample, err := session.ReadSample()
			if err != nil {
				slog.Error("Sample read failed", "device", dev.Name(), "error", err)
				continue
			}
			s.samples.Send(dev.Name(), sample)
		}
	}
}

// stopAndDetach ends sampling and the viewer, then detaches every device.
func (s *AbstractPlatform) stopAndDetach() {
	s.setInShutdown()

	close(s.samplerStopChan)
	s.samplerWg.Wait()

	if s.sampleViewer != nil {
		close(s.viewerStopChan)
		s.viewerWg.Wait()
	}

	for name, dev := range s.devices {
		if err := dev.Detach(); err != nil {
			slog.Error("Error detaching device", "device", dev.Name(), "error", err)
		}
		s.samples.Delete(dev.Name())
		delete(s.devices, name)
	}
}
