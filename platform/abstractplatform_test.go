package platform

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/adxld/adxl"
	c "lautenbacher.net/adxld/config"
)

// recordingBus is a simulated chip that also remembers every write.
type recordingBus struct {
	*simChip
	mu     sync.Mutex
	writes [][]byte
}

func (b *recordingBus) Write(w []byte) error {
	b.mu.Lock()
	b.writes = append(b.writes, append([]byte(nil), w...))
	b.mu.Unlock()
	return b.simChip.Write(w)
}

func testConfig(devices ...string) *c.Config {
	conf := &c.Config{
		Hardware: c.HardwareConfig{Devices: make(map[string]c.DeviceConfig)},
		Sampling: c.SamplingConfig{Interval: 2 * time.Millisecond},
	}
	for _, name := range devices {
		conf.Hardware.Devices[name] = c.DeviceConfig{}
	}
	return conf
}

func testNamespace(t *testing.T) *adxl.Namespace {
	ns := adxl.NewNamespace("test", 4)
	require.NoError(t, ns.Init())
	t.Cleanup(ns.Teardown)
	return ns
}

func TestAttachDevices_SkipsFailures(t *testing.T) {
	ns := testNamespace(t)
	p := newAbstractPlatform(testConfig("front", "rear", "side"), ns)
	p.openBus = func(name string, _ c.DeviceConfig) (adxl.Transport, error) {
		switch name {
		case "rear":
			return newSimChip(0xE5, 0, 1), nil
		case "side":
			return nil, errors.New("no such port")
		}
		return newSimChip(adxl.DeviceID, 0, 1), nil
	}

	p.attachDevices()

	devs := p.Devices()
	require.Len(t, devs, 1)
	assert.Equal(t, "front", devs[0].Key())
	assert.Equal(t, adxl.LogicalName, devs[0].Name())

	_, ok := ns.Lookup(adxl.LogicalName)
	assert.True(t, ok)
	assert.Len(t, ns.Devices(), 1)
}

func TestApplyInitRegisters_AscendingOrder(t *testing.T) {
	ns := testNamespace(t)
	conf := testConfig("front")
	conf.InitRegisters = map[string]byte{
		"POWER_CTL":   0x08,
		"data_format": 0x0B,
		"BW_RATE":     0x0A,
	}
	bus := &recordingBus{simChip: newSimChip(adxl.DeviceID, 0, 1)}
	p := newAbstractPlatform(conf, ns)
	p.openBus = func(string, c.DeviceConfig) (adxl.Transport, error) { return bus, nil }

	p.attachDevices()
	require.Len(t, p.Devices(), 1)

	assert.Equal(t, [][]byte{
		{byte(adxl.BWRate), 0x0A},
		{byte(adxl.PowerCtl), 0x08},
		{byte(adxl.DataFormat), 0x0B},
	}, bus.writes)
	assert.Equal(t, byte(0x08), bus.register(adxl.PowerCtl))
	assert.Equal(t, byte(0x0B), bus.register(adxl.DataFormat))
}

func TestApplyInitRegisters_UnknownRegister(t *testing.T) {
	ns := testNamespace(t)
	conf := testConfig("front")
	conf.InitRegisters = map[string]byte{"NOPE": 1}
	bus := &recordingBus{simChip: newSimChip(adxl.DeviceID, 0, 1)}
	p := newAbstractPlatform(conf, ns)
	p.openBus = func(string, c.DeviceConfig) (adxl.Transport, error) { return bus, nil }

	p.attachDevices()

	// The device stays attached, nothing is written.
	assert.Len(t, p.Devices(), 1)
	assert.Empty(t, bus.writes)
}

func TestSamplerPublishesAndStopDetaches(t *testing.T) {
	ns := testNamespace(t)
	conf := testConfig("front", "rear")
	conf.Sampling.Enabled = true
	conf.InitRegisters = map[string]byte{"POWER_CTL": 0x08}
	p := newAbstractPlatform(conf, ns)
	p.openBus = func(string, c.DeviceConfig) (adxl.Transport, error) {
		return newSimChip(adxl.DeviceID, 0, 1), nil
	}

	p.attachDevices()
	devs := p.Devices()
	require.Len(t, devs, 2)
	p.startSamplers()

	require.Eventually(t, func() bool {
		return len(p.Samples().Value()) == 2
	}, time.Second, time.Millisecond)

	sample, ok := p.Samples().Get("adxl346-1")
	require.True(t, ok)
	_, _, z := sample.Axes()
	assert.NotZero(t, z)

	p.stopAndDetach()

	assert.Empty(t, p.Devices())
	assert.Empty(t, p.Samples().Value())
	assert.Empty(t, ns.Devices())
	for _, dev := range devs {
		assert.False(t, dev.Attached())
	}
}

func TestStopAndDetach_OpenSessionKeepsDeviceBusy(t *testing.T) {
	ns := testNamespace(t)
	p := newAbstractPlatform(testConfig("front"), ns)
	p.openBus = func(string, c.DeviceConfig) (adxl.Transport, error) {
		return newSimChip(adxl.DeviceID, 0, 1), nil
	}
	p.attachDevices()
	dev := p.Devices()[0]
	session, err := dev.Open()
	require.NoError(t, err)

	p.stopAndDetach()

	assert.Empty(t, p.Devices())
	assert.True(t, dev.Attached())
	require.NoError(t, session.Close())
	require.NoError(t, dev.Detach())
	assert.False(t, dev.Attached())
}

func TestSimulationPlatform_StartStop(t *testing.T) {
	ns := testNamespace(t)
	conf := testConfig("rear", "front")
	conf.Sampling.Enabled = true
	conf.InitRegisters = map[string]byte{"POWER_CTL": 0x08}
	p := NewSimulationPlatform(conf, ns)

	require.NoError(t, p.Start())
	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatal("platform never became ready")
	}

	devs := p.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, "front", devs[0].Key())
	assert.Equal(t, "adxl346", devs[0].Name())
	assert.Equal(t, "rear", devs[1].Key())
	assert.Equal(t, "adxl346-1", devs[1].Name())

	require.Eventually(t, func() bool {
		_, ok := p.Samples().Get("adxl346")
		return ok
	}, time.Second, time.Millisecond)

	p.Stop()
	assert.Empty(t, ns.Devices())
}

func TestSimulationPlatform_IdentityOverride(t *testing.T) {
	ns := testNamespace(t)
	conf := testConfig("front")
	conf.Simulation.IdentityByte = 0xE5
	p := NewSimulationPlatform(conf, ns)

	require.NoError(t, p.Start())
	defer p.Stop()

	assert.Empty(t, p.Devices())
}
