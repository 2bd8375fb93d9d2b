package platform

import (
	"hash/fnv"
	"log/slog"

	"lautenbacher.net/adxld/adxl"
	c "lautenbacher.net/adxld/config"
)

// SimulationPlatform attaches simulated ADXL346 chips, one per configured
// device, so the daemon and its web API can run without hardware.
type SimulationPlatform struct {
	*AbstractPlatform
	chips map[string]*simChip
}

func NewSimulationPlatform(conf *c.Config, ns *adxl.Namespace) *SimulationPlatform {
	inst := &SimulationPlatform{
		chips: make(map[string]*simChip),
	}
	inst.AbstractPlatform = newAbstractPlatform(conf, ns)
	inst.openBus = inst.openSimBus
	return inst
}

func (s *SimulationPlatform) Start() error {
	slog.Info("Starting simulated accelerometers...", "devices", len(s.config.Hardware.Devices))
	s.attachDevices()
	s.startSamplers()
	s.startViewer()
	close(s.readyChan)
	return nil
}

func (s *SimulationPlatform) Stop() {
	s.stopAndDetach()
	s.chips = make(map[string]*simChip)
}

func (s *SimulationPlatform) openSimBus(name string, _ c.DeviceConfig) (adxl.Transport, error) {
	identity := s.config.Simulation.IdentityByte
	if identity == 0 {
		identity = adxl.DeviceID
	}
	// Seed from the name so every device moves differently but
	// reproducibly.
	h := fnv.New64a()
	h.Write([]byte(name))
	chip := newSimChip(identity, s.config.Simulation.Noise, int64(h.Sum64()))
	s.chips[name] = chip
	return chip, nil
}
