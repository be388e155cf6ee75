package w5500

import (
	"github.com/rschlaikjer/w5500-go/bus"
	"github.com/rschlaikjer/w5500-go/errcode"
)

// readWrite selects the SPI control phase byte's RWB bit.
type readWrite uint8

const (
	opRead  readWrite = 0 << 2
	opWrite readWrite = 1 << 2
)

// xfer issues one SPI transaction: a 3-byte address phase (address high
// byte, address low byte, then bank<<3|rw<<2|opMode) followed by the data
// phase, with chip-select held for the whole transaction. addr is 16 bits
// wide so it can reach anywhere in a socket's TX/RX buffer, not just the
// small common/per-socket register blocks.
func (d *Driver) xfer(bank uint8, addr uint16, rw readWrite, data []byte) error {
	d.bus.ChipSelect()
	defer d.bus.ChipDeselect()

	var ctrl [3]byte
	ctrl[0] = byte(addr >> 8)
	ctrl[1] = byte(addr)
	ctrl[2] = bank<<3 | uint8(rw)
	if err := d.bus.SPIXfer(ctrl[:], nil); err != nil {
		return &errcode.E{C: errcode.Unavailable, Op: "w5500.xfer", Err: err}
	}

	if rw == opRead {
		if err := d.bus.SPIXfer(nil, data); err != nil {
			return &errcode.E{C: errcode.Unavailable, Op: "w5500.xfer", Err: err}
		}
		return nil
	}
	if err := d.bus.SPIXfer(data, nil); err != nil {
		return &errcode.E{C: errcode.Unavailable, Op: "w5500.xfer", Err: err}
	}
	return nil
}

func (d *Driver) readCommon(r register) ([]byte, error) {
	buf := make([]byte, r.width)
	if err := d.xfer(commonBank, uint16(r.offset), opRead, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Driver) writeCommon(r register, data []byte) error {
	if len(data) != int(r.width) {
		return &errcode.E{C: errcode.ProgrammerError, Op: "w5500.writeCommon", Msg: "width mismatch"}
	}
	return d.xfer(commonBank, uint16(r.offset), opWrite, data)
}

func (d *Driver) readCommonU8(r register) (uint8, error) {
	b, err := d.readCommon(r)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Driver) writeCommonU8(r register, v uint8) error {
	return d.writeCommon(r, []byte{v})
}

func (d *Driver) readCommonU16(r register) (uint16, error) {
	b, err := d.readCommon(r)
	if err != nil {
		return 0, err
	}
	return getU16(b), nil
}

func (d *Driver) writeCommonU16(r register, v uint16) error {
	buf := make([]byte, 2)
	putU16(buf, v)
	return d.writeCommon(r, buf)
}

func (d *Driver) readSocket(slot uint8, r register) ([]byte, error) {
	buf := make([]byte, r.width)
	if err := d.xfer(socketRegBank(slot), uint16(r.offset), opRead, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Driver) writeSocket(slot uint8, r register, data []byte) error {
	if len(data) != int(r.width) {
		return &errcode.E{C: errcode.ProgrammerError, Op: "w5500.writeSocket", Msg: "width mismatch"}
	}
	return d.xfer(socketRegBank(slot), uint16(r.offset), opWrite, data)
}

func (d *Driver) readSocketU8(slot uint8, r register) (uint8, error) {
	b, err := d.readSocket(slot, r)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Driver) writeSocketU8(slot uint8, r register, v uint8) error {
	return d.writeSocket(slot, r, []byte{v})
}

func (d *Driver) readSocketU16(slot uint8, r register) (uint16, error) {
	b, err := d.readSocket(slot, r)
	if err != nil {
		return 0, err
	}
	return getU16(b), nil
}

func (d *Driver) writeSocketU16(slot uint8, r register, v uint16) error {
	buf := make([]byte, 2)
	putU16(buf, v)
	return d.writeSocket(slot, r, buf)
}

// command issues a Sn_CR command and blocks (bounded by the adapter's
// Millis()) until the chip clears it back to zero, signalling the command
// completed.
func (d *Driver) command(slot uint8, cmd Command) error {
	if err := d.writeSocketU8(slot, regSockCommand, uint8(cmd)); err != nil {
		return err
	}
	deadline := d.bus.Millis() + commandTimeoutMs
	for {
		v, err := d.readSocketU8(slot, regSockCommand)
		if err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
		if d.bus.Millis() > deadline {
			return &errcode.E{C: errcode.TimedOut, Op: "w5500.command", Msg: "Sn_CR did not clear"}
		}
	}
}

const commandTimeoutMs = 100
