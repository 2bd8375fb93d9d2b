package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"lautenbacher.net/adxld/adxl"
	c "lautenbacher.net/adxld/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// RaspberryPiPlatform drives accelerometers wired to the SPI bus of a
// Raspberry Pi, through either periph.io or go-rpio.
type RaspberryPiPlatform struct {
	*AbstractPlatform
	library  string
	spiMutex sync.Mutex
	spiPorts []spi.PortCloser
	csPins   []gpio.PinIO
	rpioCS   []rpio.Pin
	rpioOpen bool
}

func NewRaspberryPiPlatform(conf *c.Config, ns *adxl.Namespace) *RaspberryPiPlatform {
	inst := &RaspberryPiPlatform{
		library: strings.ToLower(conf.Hardware.GPIOLibrary),
	}
	inst.AbstractPlatform = newAbstractPlatform(conf, ns)
	return inst
}

func (s *RaspberryPiPlatform) Start() error {
	slog.Info("Initialise GPIO and Spi...", "library", s.library)

	switch s.library {
	case c.LibPeriph:
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("failed to init periph: %w", err)
		}
		s.openBus = s.openPeriphBus
	case c.LibRpio:
		if err := rpio.Open(); err != nil {
			return fmt.Errorf("failed to open rpio: %w", err)
		}
		s.rpioOpen = true
		if err := rpio.SpiBegin(rpio.Spi0); err != nil {
			s.closeHardware()
			return fmt.Errorf("failed to begin spi: %w", err)
		}
		rpio.SpiSpeed(s.config.Hardware.SPIFrequency)
		mode := uint8(s.config.Hardware.SPIMode)
		rpio.SpiMode(mode>>1, mode&1)
		s.openBus = s.openRpioBus
	default:
		return fmt.Errorf("unknown GPIO library: %s", s.config.Hardware.GPIOLibrary)
	}

	s.attachDevices()
	s.startSamplers()
	s.startViewer()

	close(s.readyChan) // For RPi, we are ready as soon as discovery is done.
	return nil
}

func (s *RaspberryPiPlatform) Stop() {
	s.stopAndDetach()
	s.closeHardware()
}

func (s *RaspberryPiPlatform) closeHardware() {
	for _, port := range s.spiPorts {
		if err := port.Close(); err != nil {
			slog.Error("Error closing spi port", "error", err)
		}
	}
	s.spiPorts = nil

	for _, pin := range s.csPins {
		if err := pin.Out(gpio.High); err != nil {
			slog.Error("Error releasing chip select", "pin", pin.Name(), "error", err)
		}
		pin.Halt()
	}
	s.csPins = nil

	if s.rpioOpen {
		for _, pin := range s.rpioCS {
			pin.High()
		}
		s.rpioCS = nil
		rpio.SpiEnd(rpio.Spi0)
		if err := rpio.Close(); err != nil {
			slog.Error("Error closing rpio", "error", err)
		}
		s.rpioOpen = false
	}
}

func (s *RaspberryPiPlatform) openPeriphBus(name string, cfg c.DeviceConfig) (adxl.Transport, error) {
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi %s: %w", cfg.SPIPort, err)
	}

	freq := physic.Frequency(s.config.Hardware.SPIFrequency) * physic.Hertz
	conn, err := port.Connect(freq, spi.Mode(s.config.Hardware.SPIMode), 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to spi device %s: %w", cfg.SPIPort, err)
	}
	s.spiPorts = append(s.spiPorts, port)

	var cs chipSelect = noChipSelect{}
	if cfg.ChipSelectGPIO > 0 {
		pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", cfg.ChipSelectGPIO))
		if pin == nil {
			return nil, fmt.Errorf("failed to find pin %d", cfg.ChipSelectGPIO)
		}
		if err := pin.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("failed to set pin %d to output: %w", cfg.ChipSelectGPIO, err)
		}
		s.csPins = append(s.csPins, pin)
		cs = periphChipSelect{pin: pin}
	}

	slog.Debug("Opened spi bus", "device", name, "port", cfg.SPIPort, "chipSelectGPIO", cfg.ChipSelectGPIO)
	return &periphTransport{conn: conn, cs: cs, mu: &s.spiMutex}, nil
}

func (s *RaspberryPiPlatform) openRpioBus(name string, cfg c.DeviceConfig) (adxl.Transport, error) {
	var cs chipSelect = noChipSelect{}
	if cfg.ChipSelectGPIO > 0 {
		pin := rpio.Pin(cfg.ChipSelectGPIO)
		pin.Output()
		pin.High()
		s.rpioCS = append(s.rpioCS, pin)
		cs = rpioChipSelect{pin: pin}
	}

	slog.Debug("Opened spi bus", "device", name, "chipSelect", cfg.ChipSelect, "chipSelectGPIO", cfg.ChipSelectGPIO)
	return newRpioTransport(cfg.ChipSelect, cs, &s.spiMutex), nil
}
