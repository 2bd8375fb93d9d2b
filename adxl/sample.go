package adxl

import (
	"encoding/binary"
	"fmt"
)

// SampleSize is the length of one raw axis sample.
const SampleSize = 6

// Sample holds DATAX0..DATAZ1 exactly as read in one burst transaction.
type Sample [SampleSize]byte

func (s Sample) X() int16 { return int16(binary.LittleEndian.Uint16(s[0:2])) }
func (s Sample) Y() int16 { return int16(binary.LittleEndian.Uint16(s[2:4])) }
func (s Sample) Z() int16 { return int16(binary.LittleEndian.Uint16(s[4:6])) }

// Axes returns the decoded two's complement values of all three axes.
func (s Sample) Axes() (x, y, z int16) {
	return s.X(), s.Y(), s.Z()
}

func (s Sample) String() string {
	return fmt.Sprintf("x=%d y=%d z=%d", s.X(), s.Y(), s.Z())
}
