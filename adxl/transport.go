package adxl

// Transport is the bus handle of one attached chip. Both calls are
// synchronous and block until the transfer completes or the bus reports a
// failure. Implementations serialise transactions on the physical bus; the
// gateway does not.
type Transport interface {
	// WriteThenRead clocks out w and then clocks in n bytes, holding the
	// chip selected for the whole transfer.
	WriteThenRead(w []byte, n int) ([]byte, error)
	// Write clocks out w.
	Write(w []byte) error
}
