package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/adxld/adxl"
)

func TestSimChip_Identity(t *testing.T) {
	chip := newSimChip(adxl.DeviceID, 0, 1)

	rx, err := chip.WriteThenRead([]byte{adxl.ReadSingle.Command(adxl.DevID)}, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{adxl.DeviceID}, rx)
}

func TestSimChip_RejectsMalformedCommands(t *testing.T) {
	chip := newSimChip(adxl.DeviceID, 0, 1)

	_, err := chip.WriteThenRead([]byte{adxl.WriteSingle.Command(adxl.DevID)}, 1)
	assert.ErrorIs(t, err, errSimCommand)

	_, err = chip.WriteThenRead([]byte{adxl.ReadSingle.Command(adxl.DataX0)}, 6)
	assert.ErrorIs(t, err, errSimCommand)

	err = chip.Write([]byte{adxl.ReadSingle.Command(adxl.PowerCtl), 0x08})
	assert.ErrorIs(t, err, errSimCommand)

	err = chip.Write([]byte{adxl.WriteSingle.Command(adxl.PowerCtl), 0x08, 0x00})
	assert.ErrorIs(t, err, errSimCommand)
}

func TestSimChip_DataFrozenUntilMeasuring(t *testing.T) {
	chip := newSimChip(adxl.DeviceID, 0, 1)
	cmd := []byte{adxl.ReadMulti.Command(adxl.DataX0)}

	rx, err := chip.WriteThenRead(cmd, adxl.SampleSize)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, adxl.SampleSize), rx)

	require.NoError(t, chip.Write([]byte{adxl.WriteSingle.Command(adxl.PowerCtl), 0x08}))
	rx, err = chip.WriteThenRead(cmd, adxl.SampleSize)
	require.NoError(t, err)

	var sample adxl.Sample
	copy(sample[:], rx)
	x, y, z := sample.Axes()
	// First step of the swing: sin and cos of 2*pi/200 scaled to 256 LSB/g.
	assert.Equal(t, int16(4), x)
	assert.Equal(t, int16(0), y)
	assert.Equal(t, int16(255), z)
}

func TestSimChip_ReadOnlyRegistersIgnoreWrites(t *testing.T) {
	chip := newSimChip(adxl.DeviceID, 0, 1)

	require.NoError(t, chip.Write([]byte{adxl.WriteSingle.Command(adxl.DevID), 0x00}))
	require.NoError(t, chip.Write([]byte{adxl.WriteSingle.Command(adxl.DataX0), 0x7F}))
	require.NoError(t, chip.Write([]byte{adxl.WriteSingle.Command(adxl.BWRate), 0x0F}))

	assert.Equal(t, adxl.DeviceID, chip.register(adxl.DevID))
	assert.Equal(t, byte(0), chip.register(adxl.DataX0))
	assert.Equal(t, byte(0x0F), chip.register(adxl.BWRate))
}

func TestSimChip_NoiseStaysInBounds(t *testing.T) {
	chip := newSimChip(adxl.DeviceID, 3, 42)
	for range 1000 {
		j := chip.jitter()
		assert.GreaterOrEqual(t, j, -3)
		assert.LessOrEqual(t, j, 3)
	}
}

func TestSimChip_ThroughSession(t *testing.T) {
	ns := testNamespace(t)
	chip := newSimChip(adxl.DeviceID, 0, 1)
	dev, err := ns.Attach("front", chip)
	require.NoError(t, err)

	session, err := dev.Open()
	require.NoError(t, err)
	defer session.Close()

	n, err := session.Write([]byte{byte(adxl.PowerCtl), 0x08})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	buf := make([]byte, 8)
	n, err = session.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, adxl.SampleSize, n)
	assert.NotEqual(t, make([]byte, adxl.SampleSize), buf[:adxl.SampleSize])
}
