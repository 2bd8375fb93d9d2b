package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"lautenbacher.net/adxld/adxl"
)

const CONFILE = "config.yml"

const (
	LibPeriph = "periph.io"
	LibRpio   = "rpio"
)

type Config struct {
	RealHW        bool             `yaml:"-"`
	ShowSamples   bool             `yaml:"-"`
	Configfile    string           `yaml:"-"`
	Hardware      HardwareConfig   `yaml:"Hardware"`
	Sampling      SamplingConfig   `yaml:"Sampling"`
	InitRegisters map[string]byte  `yaml:"InitRegisters"`
	Simulation    SimulationConfig `yaml:"Simulation"`
	Web           WebConfig        `yaml:"Web"`
	Logging       LoggingConfig    `yaml:"Logging"`
}

type HardwareConfig struct {
	// GPIOLibrary selects the SPI backend, either "periph.io" or "rpio".
	GPIOLibrary  string                  `yaml:"GPIOLibrary"`
	SPIFrequency int                     `yaml:"SPIFrequency"`
	SPIMode      int                     `yaml:"SPIMode"`
	Devices      map[string]DeviceConfig `yaml:"Devices"`
}

// DeviceConfig describes where one accelerometer is wired.
type DeviceConfig struct {
	// SPIPort is the periph.io port name, e.g. "/dev/spidev1.0".
	SPIPort string `yaml:"SPIPort"`
	// ChipSelect is the hardware chip-select line used by the rpio backend.
	ChipSelect uint8 `yaml:"ChipSelect"`
	// ChipSelectGPIO is an optional active-low GPIO driven around every
	// transaction. Zero means none.
	ChipSelectGPIO int `yaml:"ChipSelectGPIO"`
}

type SamplingConfig struct {
	Enabled  bool          `yaml:"Enabled" json:"Enabled"`
	Interval time.Duration `yaml:"Interval" json:"Interval"`
}

type SimulationConfig struct {
	// IdentityByte is what the simulated DEVID register reads back.
	IdentityByte byte `yaml:"IdentityByte"`
	// Noise is the peak amplitude of random jitter added to simulated axes.
	Noise int `yaml:"Noise"`
}

type WebConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Address string `yaml:"Address"`
}

type LoggingConfig struct {
	Viewer LogConfig `yaml:"Viewer"`
	Daemon LogConfig `yaml:"Daemon"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't find config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := &Config{}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate checks the whole configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Hardware.validate(); err != nil {
		return err
	}
	if err := c.validateRuntime(); err != nil {
		return err
	}
	if c.Web.Enabled && c.Web.Address == "" {
		return fmt.Errorf("Web.Address must be set when the web server is enabled")
	}
	for name, lc := range map[string]LogConfig{"Viewer": c.Logging.Viewer, "Daemon": c.Logging.Daemon} {
		switch strings.ToLower(lc.Format) {
		case "", "text", "json":
		default:
			return fmt.Errorf("Logging.%s.Format %q must be text or json", name, lc.Format)
		}
	}
	return nil
}

// validateRuntime covers the subset that RuntimeConfig may change.
func (c *Config) validateRuntime() error {
	if c.Sampling.Enabled && c.Sampling.Interval <= 0 {
		return fmt.Errorf("Sampling.Interval must be positive, got %v", c.Sampling.Interval)
	}
	for name := range c.InitRegisters {
		reg, err := adxl.LookupRegister(name)
		if err != nil {
			return fmt.Errorf("InitRegisters: %w", err)
		}
		if !reg.Writable() {
			return fmt.Errorf("InitRegisters: register %s is read-only", reg)
		}
	}
	return nil
}

func (h *HardwareConfig) validate() error {
	lib := strings.ToLower(h.GPIOLibrary)
	if lib != LibPeriph && lib != LibRpio {
		return fmt.Errorf("Hardware.GPIOLibrary %q must be %s or %s", h.GPIOLibrary, LibPeriph, LibRpio)
	}
	if h.SPIFrequency <= 0 {
		return fmt.Errorf("Hardware.SPIFrequency must be positive, got %d", h.SPIFrequency)
	}
	if h.SPIMode < 0 || h.SPIMode > 3 {
		return fmt.Errorf("Hardware.SPIMode must be between 0 and 3, got %d", h.SPIMode)
	}
	if len(h.Devices) == 0 {
		return fmt.Errorf("at least one device must be configured in Hardware.Devices")
	}

	ports := make(map[string]string, len(h.Devices))
	selects := make(map[uint8]string, len(h.Devices))
	for name, dev := range h.Devices {
		if lib == LibPeriph {
			if dev.SPIPort == "" {
				return fmt.Errorf("device %s: SPIPort must be set for %s", name, LibPeriph)
			}
			if other, dup := ports[dev.SPIPort]; dup {
				return fmt.Errorf("devices %s and %s share SPIPort %s", other, name, dev.SPIPort)
			}
			ports[dev.SPIPort] = name
		} else {
			if dev.ChipSelect > 2 {
				return fmt.Errorf("device %s: ChipSelect must be between 0 and 2, got %d", name, dev.ChipSelect)
			}
			if other, dup := selects[dev.ChipSelect]; dup {
				return fmt.Errorf("devices %s and %s share ChipSelect %d", other, name, dev.ChipSelect)
			}
			selects[dev.ChipSelect] = name
		}
		if dev.ChipSelectGPIO < 0 {
			return fmt.Errorf("device %s: ChipSelectGPIO must not be negative", name)
		}
	}
	return nil
}

// LogConfigFor returns the logging section matching the run mode.
func (c *Config) LogConfigFor(viewer bool) LogConfig {
	if viewer {
		return c.Logging.Viewer
	}
	return c.Logging.Daemon
}
