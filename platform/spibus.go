package platform

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
)

// chipSelect drives an optional active-low select line around a
// transaction, for chips wired to a plain GPIO instead of a hardware CS.
type chipSelect interface {
	selectChip() error
	deselectChip() error
}

type noChipSelect struct{}

func (noChipSelect) selectChip() error   { return nil }
func (noChipSelect) deselectChip() error { return nil }

// gpioOut is the part of gpio.PinOut the select line needs.
type gpioOut interface {
	Out(l gpio.Level) error
}

type periphChipSelect struct {
	pin gpioOut
}

func (cs periphChipSelect) selectChip() error   { return cs.pin.Out(gpio.Low) }
func (cs periphChipSelect) deselectChip() error { return cs.pin.Out(gpio.High) }

type rpioChipSelect struct {
	pin rpio.Pin
}

func (cs rpioChipSelect) selectChip() error {
	cs.pin.Low()
	return nil
}

func (cs rpioChipSelect) deselectChip() error {
	cs.pin.High()
	return nil
}

// withChipSelect runs tx with the chip selected. The line is released even
// if tx fails.
func withChipSelect(cs chipSelect, tx func() error) error {
	if err := cs.selectChip(); err != nil {
		return fmt.Errorf("chip select: %w", err)
	}
	txErr := tx()
	if err := cs.deselectChip(); err != nil && txErr == nil {
		return fmt.Errorf("chip deselect: %w", err)
	}
	return txErr
}

// txer is the full-duplex transfer of a periph.io spi.Conn.
type txer interface {
	Tx(w, r []byte) error
}

// periphTransport talks to one chip through a periph.io SPI connection.
// A half-duplex write-then-read is sent as one full-duplex transfer padded
// with zeros, keeping the chip selected across command and response.
type periphTransport struct {
	conn txer
	cs   chipSelect
	mu   *sync.Mutex
}

func (t *periphTransport) WriteThenRead(w []byte, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := make([]byte, len(w)+n)
	copy(tx, w)
	rx := make([]byte, len(tx))
	if err := withChipSelect(t.cs, func() error { return t.conn.Tx(tx, rx) }); err != nil {
		return nil, fmt.Errorf("spi transaction failed: %w", err)
	}
	return rx[len(w):], nil
}

func (t *periphTransport) Write(w []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rx := make([]byte, len(w))
	if err := withChipSelect(t.cs, func() error { return t.conn.Tx(w, rx) }); err != nil {
		return fmt.Errorf("spi transaction failed: %w", err)
	}
	return nil
}

// rpioTransport talks to one chip on the BCM SPI0 controller through
// go-rpio. go-rpio keeps the controller state globally, so every
// transaction re-selects its hardware chip-select line under the shared
// bus mutex.
type rpioTransport struct {
	chipSelectLine uint8
	cs             chipSelect
	mu             *sync.Mutex
	selectLine     func(uint8)
	exchange       func([]byte)
}

func newRpioTransport(line uint8, cs chipSelect, mu *sync.Mutex) *rpioTransport {
	return &rpioTransport{
		chipSelectLine: line,
		cs:             cs,
		mu:             mu,
		selectLine:     rpio.SpiChipSelect,
		exchange:       rpio.SpiExchange,
	}
}

func (t *rpioTransport) WriteThenRead(w []byte, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := make([]byte, len(w)+n)
	copy(buf, w)
	t.selectLine(t.chipSelectLine)
	if err := withChipSelect(t.cs, func() error {
		t.exchange(buf)
		return nil
	}); err != nil {
		return nil, err
	}
	return buf[len(w):], nil
}

func (t *rpioTransport) Write(w []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// SpiExchange overwrites its argument with the received bytes.
	buf := append([]byte(nil), w...)
	t.selectLine(t.chipSelectLine)
	return withChipSelect(t.cs, func() error {
		t.exchange(buf)
		return nil
	})
}
