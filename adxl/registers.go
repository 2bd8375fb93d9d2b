package adxl

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Register is an 8-bit register offset in the ADXL346 register map.
type Register byte

// AccessMode is OR'd with a register offset to form the SPI command byte.
type AccessMode byte

const (
	WriteSingle AccessMode = 0x00
	WriteMulti  AccessMode = 0x40
	ReadSingle  AccessMode = 0x80
	ReadMulti   AccessMode = 0xC0
)

// Command returns the command byte addressing r with the given access mode.
func (m AccessMode) Command(r Register) byte {
	return byte(m) | byte(r)
}

const (
	DevID        Register = 0x00
	ThreshTap    Register = 0x1D
	OfsX         Register = 0x1E
	OfsY         Register = 0x1F
	OfsZ         Register = 0x20
	Dur          Register = 0x21
	Latent       Register = 0x22
	Window       Register = 0x23
	ThreshAct    Register = 0x24
	ThreshInact  Register = 0x25
	TimeInact    Register = 0x26
	ActInactCtl  Register = 0x27
	ThreshFF     Register = 0x28
	TimeFF       Register = 0x29
	TapAxes      Register = 0x2A
	ActTapStatus Register = 0x2B
	BWRate       Register = 0x2C
	PowerCtl     Register = 0x2D
	IntEnable    Register = 0x2E
	IntMap       Register = 0x2F
	IntSource    Register = 0x30
	DataFormat   Register = 0x31
	DataX0       Register = 0x32
	DataX1       Register = 0x33
	DataY0       Register = 0x34
	DataY1       Register = 0x35
	DataZ0       Register = 0x36
	DataZ1       Register = 0x37
	FIFOCtl      Register = 0x38
	FIFOStatus   Register = 0x39
	TapSign      Register = 0x3A
	OrientConf   Register = 0x3B

	// LastRegister is the highest offset in the vendor map.
	LastRegister = OrientConf
)

// DeviceID is the value of the identity register on an ADXL346.
const DeviceID byte = 0xE6

// registerMap names every register as it appears in the data sheet.
// It is read-only after package init.
var registerMap = map[string]Register{
	"DEVID":          DevID,
	"THRESH_TAP":     ThreshTap,
	"OFSX":           OfsX,
	"OFSY":           OfsY,
	"OFSZ":           OfsZ,
	"DUR":            Dur,
	"LATENT":         Latent,
	"WINDOW":         Window,
	"THRESH_ACT":     ThreshAct,
	"THRESH_INACT":   ThreshInact,
	"TIME_INACT":     TimeInact,
	"ACT_INACT_CTL":  ActInactCtl,
	"THRESH_FF":      ThreshFF,
	"TIME_FF":        TimeFF,
	"TAP_AXES":       TapAxes,
	"ACT_TAP_STATUS": ActTapStatus,
	"BW_RATE":        BWRate,
	"POWER_CTL":      PowerCtl,
	"INT_ENABLE":     IntEnable,
	"INT_MAP":        IntMap,
	"INT_SOURCE":     IntSource,
	"DATA_FORMAT":    DataFormat,
	"DATAX0":         DataX0,
	"DATAX1":         DataX1,
	"DATAY0":         DataY0,
	"DATAY1":         DataY1,
	"DATAZ0":         DataZ0,
	"DATAZ1":         DataZ1,
	"FIFO_CTL":       FIFOCtl,
	"FIFO_STATUS":    FIFOStatus,
	"TAP_SIGN":       TapSign,
	"ORIENT_CONF":    OrientConf,
}

// LookupRegister resolves a data sheet register name, case-insensitively.
func LookupRegister(name string) (Register, error) {
	r, ok := registerMap[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("register %q: %w", name, ErrUnknownRegister)
	}
	return r, nil
}

// RegisterNames returns all register names ordered by offset.
func RegisterNames() []string {
	names := make([]string, 0, len(registerMap))
	for name := range registerMap {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return int(registerMap[a]) - int(registerMap[b])
	})
	return names
}

// String returns the data sheet name of r, or its hex offset if unnamed.
func (r Register) String() string {
	for name, reg := range registerMap {
		if reg == r {
			return name
		}
	}
	return fmt.Sprintf("0x%02X", byte(r))
}

// validateRegisterMap checks that every offset lies inside the vendor map
// and that no two names share an offset.
func validateRegisterMap(m map[string]Register) error {
	seen := make(map[Register]string, len(m))
	for _, name := range sortedNames(m) {
		reg := m[name]
		if reg > LastRegister {
			return fmt.Errorf("register %s at 0x%02X is outside the map (max 0x%02X)", name, byte(reg), byte(LastRegister))
		}
		if other, dup := seen[reg]; dup {
			return fmt.Errorf("registers %s and %s share offset 0x%02X", other, name, byte(reg))
		}
		seen[reg] = name
	}
	return nil
}

// sortedNames returns the keys of m in lexical order.
func sortedNames(m map[string]Register) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Writable reports whether r accepts writes. Identity, data, status and
// interrupt source registers are read-only, as is the reserved 0x01-0x1C
// range.
func (r Register) Writable() bool {
	switch r {
	case DevID, ActTapStatus, IntSource, FIFOStatus, TapSign:
		return false
	}
	return r >= ThreshTap && r <= LastRegister && !(r >= DataX0 && r <= DataZ1)
}
