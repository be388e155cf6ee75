// Package bus defines the capability interface the W5500 driver needs from
// its host environment: a millisecond clock, a PRNG, raw SPI byte transfer,
// chip-select control, a latched interrupt flag, and a log sink.
package bus

// Adapter is everything drivers/w5500.Driver borrows from the host firmware.
// Nothing in this package or in drivers/w5500 blocks on anything but SPIXfer.
type Adapter interface {
	// Millis returns monotonic milliseconds since some fixed epoch.
	Millis() uint64

	// Random returns the next PRNG output. See LFSR for the default source.
	Random() uint64

	// SPIXfer transfers len(tx) (== len(rx) when both non-nil) bytes full
	// duplex. Either slice may be nil: a nil tx sends zeros, a nil rx
	// discards the received bytes. Blocks until the transfer completes.
	SPIXfer(tx, rx []byte) error

	// ChipSelect/ChipDeselect bracket one framed SPI transaction.
	ChipSelect()
	ChipDeselect()

	// HasPendingInterrupt reports the latched flag set by TriggerInterrupt
	// (called from the user's ISR, outside this interface). ClearInterrupt
	// is called by the driver once it has serviced the condition.
	HasPendingInterrupt() bool
	ClearInterrupt()

	// Logf is a no-op by default; adapters may back it with anything.
	Logf(format string, args ...any)
}

// SPIXferByte is a convenience single-byte full-duplex transfer built on top
// of an Adapter's bulk SPIXfer.
func SPIXferByte(a Adapter, tx byte) (byte, error) {
	txBuf := [1]byte{tx}
	var rxBuf [1]byte
	if err := a.SPIXfer(txBuf[:], rxBuf[:]); err != nil {
		return 0, err
	}
	return rxBuf[0], nil
}
