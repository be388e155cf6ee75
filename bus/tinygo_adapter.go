package bus

import "tinygo.org/x/drivers"

// Pin is the minimal GPIO control surface this package needs from a real
// board — modeled after machine.Pin's High()/Low() methods without
// importing the machine package (which only exists under a TinyGo target).
type Pin interface {
	High()
	Low()
}

// TinygoSPIAdapter backs Adapter with a tinygo.org/x/drivers.SPI bus plus a
// chip-select pin and injectable clock/PRNG/log functions.
type TinygoSPIAdapter struct {
	SPI  drivers.SPI
	CS   Pin
	Clk  func() uint64
	Rand RandomFunc
	Log  func(format string, args ...any)

	interruptPending bool
}

// NewTinygoSPIAdapter wires a drivers.SPI + chip-select pin into a full
// Adapter. clk supplies Millis(); if rand is nil, an LFSR seeded from the
// first Millis() reading is used.
func NewTinygoSPIAdapter(spi drivers.SPI, cs Pin, clk func() uint64, rand RandomFunc, logf func(format string, args ...any)) *TinygoSPIAdapter {
	if rand == nil {
		rand = NewLFSR(clk()).Next
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &TinygoSPIAdapter{SPI: spi, CS: cs, Clk: clk, Rand: rand, Log: logf}
}

func (a *TinygoSPIAdapter) Millis() uint64 { return a.Clk() }
func (a *TinygoSPIAdapter) Random() uint64 { return a.Rand() }

func (a *TinygoSPIAdapter) SPIXfer(tx, rx []byte) error {
	if tx == nil && rx == nil {
		return nil
	}
	return a.SPI.Tx(tx, rx)
}

func (a *TinygoSPIAdapter) ChipSelect()   { a.CS.Low() }
func (a *TinygoSPIAdapter) ChipDeselect() { a.CS.High() }

// TriggerInterrupt is called from the board's GPIO interrupt handler.
func (a *TinygoSPIAdapter) TriggerInterrupt()         { a.interruptPending = true }
func (a *TinygoSPIAdapter) HasPendingInterrupt() bool { return a.interruptPending }
func (a *TinygoSPIAdapter) ClearInterrupt()           { a.interruptPending = false }

func (a *TinygoSPIAdapter) Logf(format string, args ...any) { a.Log(format, args...) }
