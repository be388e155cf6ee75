package w5500

import (
	"github.com/rschlaikjer/w5500-go/errcode"
	"github.com/rschlaikjer/w5500-go/x/mathx"
)

// SetTxBufferSize / SetRxBufferSize configure a socket's share of the
// chip's 16KiB TX (or RX) memory before the socket is opened. The sum of
// every socket's buffer size in a given direction must not exceed 16KiB;
// the chip does not enforce this itself and silently misbehaves if it is
// violated, so the driver checks it up front.
func (d *Driver) SetTxBufferSize(slot uint8, size BufferSize) error {
	if err := d.checkBufferBudget(regSockTxBufSize, slot, size); err != nil {
		return err
	}
	return d.writeSocketU8(slot, regSockTxBufSize, uint8(size))
}

func (d *Driver) SetRxBufferSize(slot uint8, size BufferSize) error {
	if err := d.checkBufferBudget(regSockRxBufSize, slot, size); err != nil {
		return err
	}
	return d.writeSocketU8(slot, regSockRxBufSize, uint8(size))
}

// SetSocketDestMAC / SocketDestMAC manage a socket's destination hardware
// address (Sn_DHAR), used for SEND_MAC sends that skip ARP resolution
// entirely in favour of a hardware address the caller already knows.
// Exposed for completeness; no protocol client in this stack issues
// SEND_MAC, since DHCP/DNS/NTP always resolve their peer through the
// chip's own ARP engine via plain SEND.
func (d *Driver) SetSocketDestMAC(slot uint8, mac [6]byte) error {
	return d.writeSocket(slot, regSockDestHWAddr, mac[:])
}

func (d *Driver) SocketDestMAC(slot uint8) ([6]byte, error) {
	var mac [6]byte
	b, err := d.readSocket(slot, regSockDestHWAddr)
	if err != nil {
		return mac, err
	}
	copy(mac[:], b)
	return mac, nil
}

func (d *Driver) checkBufferBudget(r register, slot uint8, size BufferSize) error {
	var total uint32
	for i := uint8(0); i < MaxSockets; i++ {
		if i == slot {
			total += uint32(size)
			continue
		}
		v, err := d.readSocketU8(i, r)
		if err != nil {
			return err
		}
		total += uint32(v)
	}
	if total > maxBufferBudgetKiB {
		return &errcode.E{C: errcode.ProgrammerError, Op: "w5500.checkBufferBudget", Msg: "buffer budget exceeded"}
	}
	return nil
}

// socketWrite copies data into a socket's TX ring buffer at the current
// write pointer and advances Sn_TX_WR past it, without issuing SEND;
// callers issue SEND (socketSend) once the whole payload has been
// written. It is atomic: a datagram either fits whole or nothing is written, since a
// partial UDP payload would corrupt the chip's own framing of the
// datagram boundary.
func (d *Driver) socketWrite(slot uint8, data []byte) error {
	freeSize, err := d.readSocketU16(slot, regSockTxFreeSize)
	if err != nil {
		return err
	}
	if int(freeSize) < len(data) {
		return &errcode.E{C: errcode.TransientBackpressure, Op: "w5500.socketWrite", Msg: "TX buffer full"}
	}
	return d.writeRingAt(slot, data)
}

// socketWriteUpTo writes as many of data's leading bytes as currently fit
// in the socket's TX free space, returning the count actually written (0
// if the buffer is entirely full). Unlike socketWrite, a short write is
// not an error: a TCP byte stream has no per-write framing to preserve,
// so the caller can simply retry the remainder on a later tick, matching
// the write() contract in spec.md's driver section.
func (d *Driver) socketWriteUpTo(slot uint8, data []byte) (int, error) {
	freeSize, err := d.readSocketU16(slot, regSockTxFreeSize)
	if err != nil {
		return 0, err
	}
	n := int(freeSize)
	if n > len(data) {
		n = len(data)
	}
	if n == 0 {
		return 0, nil
	}
	if err := d.writeRingAt(slot, data[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *Driver) writeRingAt(slot uint8, data []byte) error {
	writePtr, err := d.readSocketU16(slot, regSockTxWritePtr)
	if err != nil {
		return err
	}

	bufSize, err := d.txBufferBytes(slot)
	if err != nil {
		return err
	}
	offset := writePtr % bufSize
	bank := socketTxBank(slot)
	if err := d.writeRing(bank, offset, bufSize, data); err != nil {
		return err
	}

	return d.writeSocketU16(slot, regSockTxWritePtr, writePtr+uint16(len(data)))
}

// socketSend issues the SEND command, transmitting everything written
// since the last SEND.
func (d *Driver) socketSend(slot uint8) error {
	return d.command(slot, CmdSend)
}

// socketRecvSize reports how many bytes are currently buffered in the
// socket's RX ring (Sn_RX_RSR).
func (d *Driver) socketRecvSize(slot uint8) (uint16, error) {
	return d.readSocketU16(slot, regSockRxRecvSize)
}

// socketPeek copies n bytes starting at the current RX read pointer
// without advancing it, so repeated peeks return the same bytes.
func (d *Driver) socketPeek(slot uint8, n uint16) ([]byte, error) {
	readPtr, err := d.readSocketU16(slot, regSockRxReadPtr)
	if err != nil {
		return nil, err
	}
	bufSize, err := d.rxBufferBytes(slot)
	if err != nil {
		return nil, err
	}
	offset := readPtr % bufSize
	bank := socketRxBank(slot)
	out := make([]byte, n)
	if err := d.readRing(bank, offset, bufSize, out); err != nil {
		return nil, err
	}
	return out, nil
}

// socketRead copies n bytes from the RX ring, advances the read pointer,
// and issues RECV so the chip knows the space has been freed.
func (d *Driver) socketRead(slot uint8, n uint16) ([]byte, error) {
	out, err := d.socketPeek(slot, n)
	if err != nil {
		return nil, err
	}
	readPtr, err := d.readSocketU16(slot, regSockRxReadPtr)
	if err != nil {
		return nil, err
	}
	if err := d.writeSocketU16(slot, regSockRxReadPtr, readPtr+n); err != nil {
		return nil, err
	}
	if err := d.command(slot, CmdRecv); err != nil {
		return nil, err
	}
	return out, nil
}

// socketSkip advances the RX read pointer by n bytes without returning
// them, used to discard the remainder of a datagram the caller doesn't
// want.
func (d *Driver) socketSkip(slot uint8, n uint16) error {
	readPtr, err := d.readSocketU16(slot, regSockRxReadPtr)
	if err != nil {
		return err
	}
	if err := d.writeSocketU16(slot, regSockRxReadPtr, readPtr+n); err != nil {
		return err
	}
	return d.command(slot, CmdRecv)
}

func (d *Driver) txBufferBytes(slot uint8) (uint16, error) {
	v, err := d.readSocketU8(slot, regSockTxBufSize)
	if err != nil {
		return 0, err
	}
	return kibToBytes(v), nil
}

func (d *Driver) rxBufferBytes(slot uint8) (uint16, error) {
	v, err := d.readSocketU8(slot, regSockRxBufSize)
	if err != nil {
		return 0, err
	}
	return kibToBytes(v), nil
}

func kibToBytes(kib uint8) uint16 {
	if kib == 0 {
		return 1 // avoid a div-by-zero modulo; the socket can't be opened with a zero-size buffer anyway
	}
	return uint16(kib) * 1024
}

// writeRing/readRing handle the wraparound a ring buffer offset can hit:
// when offset+len(data) crosses the buffer boundary, the transfer must be
// split into two SPI transactions since the chip's own address counter
// wraps at bufSize, not at the end of an arbitrary transfer.
func (d *Driver) writeRing(bank uint8, offset, bufSize uint16, data []byte) error {
	firstLen := mathx.Min(uint16(len(data)), bufSize-offset)
	if err := d.xfer(bank, offset, opWrite, data[:firstLen]); err != nil {
		return err
	}
	if firstLen == uint16(len(data)) {
		return nil
	}
	return d.xfer(bank, 0, opWrite, data[firstLen:])
}

func (d *Driver) readRing(bank uint8, offset, bufSize uint16, out []byte) error {
	firstLen := mathx.Min(uint16(len(out)), bufSize-offset)
	if err := d.xfer(bank, offset, opRead, out[:firstLen]); err != nil {
		return err
	}
	if firstLen == uint16(len(out)) {
		return nil
	}
	return d.xfer(bank, 0, opRead, out[firstLen:])
}
