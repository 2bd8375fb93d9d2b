package platform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"lautenbacher.net/adxld/adxl"
)

const (
	measureBit   = 0x08 // POWER_CTL measure mode
	lsbPerG      = 256  // full resolution, 4 mg/LSB
	motionPeriod = 200  // samples per simulated swing
	addressMask  = 0x3F
	multiBit     = 0x40
	readBit      = 0x80
)

var errSimCommand = errors.New("simulated adxl346: malformed command")

// simChip is an in-memory ADXL346 register file behind adxl.Transport.
// Data registers advance one step every time a burst read starts at
// DATAX0 while measurement is enabled.
type simChip struct {
	mu    sync.Mutex
	regs  [int(adxl.LastRegister) + 1]byte
	step  int
	noise int
	rng   *rand.Rand
}

func newSimChip(identity byte, noise int, seed int64) *simChip {
	chip := &simChip{
		noise: noise,
		rng:   rand.New(rand.NewSource(seed)),
	}
	chip.regs[adxl.DevID] = identity
	chip.regs[adxl.BWRate] = 0x0A
	chip.regs[adxl.IntSource] = 0x02
	return chip
}

func (c *simChip) WriteThenRead(w []byte, n int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(w) != 1 || w[0]&readBit == 0 {
		return nil, fmt.Errorf("%w: % x", errSimCommand, w)
	}
	multi := w[0]&multiBit != 0
	addr := int(w[0] & addressMask)
	if !multi && n != 1 {
		return nil, fmt.Errorf("%w: single read of %d bytes", errSimCommand, n)
	}

	if addr == int(adxl.DataX0) && c.regs[adxl.PowerCtl]&measureBit != 0 {
		c.advance()
	}

	out := make([]byte, n)
	for i := range out {
		if a := addr + i; a < len(c.regs) {
			out[i] = c.regs[a]
		}
	}
	return out, nil
}

func (c *simChip) Write(w []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(w) < 2 || w[0]&readBit != 0 {
		return fmt.Errorf("%w: % x", errSimCommand, w)
	}
	multi := w[0]&multiBit != 0
	if !multi && len(w) != 2 {
		return fmt.Errorf("%w: single write of %d bytes", errSimCommand, len(w)-1)
	}
	addr := int(w[0] & addressMask)
	for i, v := range w[1:] {
		a := addr + i
		if a < len(c.regs) && adxl.Register(a).Writable() {
			c.regs[a] = v
		}
	}
	return nil
}

func (c *simChip) register(r adxl.Register) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[r]
}

// advance moves the simulated board through a slow tilt around the X axis
// with gravity on Z at rest.
func (c *simChip) advance() {
	c.step++
	phase := 2 * math.Pi * float64(c.step%motionPeriod) / motionPeriod
	x := int(float64(lsbPerG)*0.5*math.Sin(phase)) + c.jitter()
	y := c.jitter()
	z := int(float64(lsbPerG)*math.Cos(phase/2)) + c.jitter()

	binary.LittleEndian.PutUint16(c.regs[adxl.DataX0:], uint16(int16(x)))
	binary.LittleEndian.PutUint16(c.regs[adxl.DataY0:], uint16(int16(y)))
	binary.LittleEndian.PutUint16(c.regs[adxl.DataZ0:], uint16(int16(z)))
}

func (c *simChip) jitter() int {
	if c.noise <= 0 {
		return 0
	}
	return c.rng.Intn(2*c.noise+1) - c.noise
}
