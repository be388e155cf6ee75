package w5500

// fakeChip is a host-side model of a W5500's addressable register and
// buffer space, used in place of a real SPI bus in tests. It mirrors the
// shape of the chip's own address map (commonBank plus 8*(regs, tx, rx))
// rather than emulating SPI timing, following the simulated-device-state
// pattern used elsewhere in this codebase for host-side driver tests.
type fakeChip struct {
	common [256]byte
	socket [MaxSockets]struct {
		regs [256]byte
		tx   [16 * 1024]byte
		rx   [16 * 1024]byte
	}

	millis uint64
	rand   uint64

	pendingCS  bool
	lastBank   uint8
	lastAddr   uint16
	lastRW     uint8
	phase      int // 0 = expecting control phase, 1 = expecting data phase
	dataIsRead bool

	interrupt bool
	log       []string
}

func newFakeChip() *fakeChip {
	c := &fakeChip{}
	// VERSIONR always reads 0x04 on a genuine chip.
	c.common[regChipVersion.offset] = chipVersionExpected
	// Sn_TXBUF_SIZE/Sn_RXBUF_SIZE default to 2KiB/socket out of reset, the
	// real chip's power-on default.
	for i := range c.socket {
		c.socket[i].regs[regSockTxBufSize.offset] = uint8(BufSize2K)
		c.socket[i].regs[regSockRxBufSize.offset] = uint8(BufSize2K)
	}
	return c
}

func (c *fakeChip) Millis() uint64 { return c.millis }
func (c *fakeChip) Random() uint64 {
	c.rand++
	return c.rand
}

func (c *fakeChip) ChipSelect()   { c.pendingCS = true; c.phase = 0 }
func (c *fakeChip) ChipDeselect() { c.pendingCS = false }

func (c *fakeChip) HasPendingInterrupt() bool { return c.interrupt }
func (c *fakeChip) ClearInterrupt()           { c.interrupt = false }

func (c *fakeChip) Logf(format string, args ...any) {
	c.log = append(c.log, format)
}

// SPIXfer emulates the chip's two-phase protocol: the first call after
// ChipSelect carries the 3-byte address phase (tx only), every call after
// that is a data phase of arbitrary length.
func (c *fakeChip) SPIXfer(tx, rx []byte) error {
	if c.phase == 0 {
		c.lastAddr = uint16(tx[0])<<8 | uint16(tx[1])
		c.lastBank = tx[2] >> 3
		c.lastRW = (tx[2] >> 2) & 1
		c.phase = 1
		return nil
	}

	if c.lastRW == 1 {
		c.writeData(tx)
	} else {
		c.readData(rx)
	}
	return nil
}

func (c *fakeChip) writeData(data []byte) {
	switch {
	case c.lastBank == commonBank:
		copy(c.common[int(c.lastAddr):], data)
		// A real chip completes its soft reset well within a single poll
		// interval; clear MR.RST immediately so Init's poll loop observes
		// it cleared on the very next read instead of spinning.
		if int(c.lastAddr) <= regMode.offset && int(c.lastAddr)+len(data) > regMode.offset {
			c.common[regMode.offset] &^= modeReset
		}
	case c.lastBank%4 == 1:
		sock := &c.socket[(c.lastBank-1)/4]
		copy(sock.regs[int(c.lastAddr):], data)
		c.maybeRunCommand((c.lastBank - 1) / 4)
	case c.lastBank%4 == 2:
		sock := &c.socket[(c.lastBank-2)/4]
		wrapCopy(sock.tx[:], int(c.lastAddr), data)
	case c.lastBank%4 == 3:
		sock := &c.socket[(c.lastBank-3)/4]
		wrapCopy(sock.rx[:], int(c.lastAddr), data)
	}
}

func (c *fakeChip) readData(out []byte) {
	switch {
	case c.lastBank == commonBank:
		copy(out, c.common[int(c.lastAddr):])
	case c.lastBank%4 == 1:
		slot := (c.lastBank - 1) / 4
		c.refreshDerivedRegisters(slot)
		sock := &c.socket[slot]
		copy(out, sock.regs[int(c.lastAddr):])
	case c.lastBank%4 == 2:
		sock := &c.socket[(c.lastBank-2)/4]
		wrapRead(out, sock.tx[:], int(c.lastAddr))
	case c.lastBank%4 == 3:
		sock := &c.socket[(c.lastBank-3)/4]
		wrapRead(out, sock.rx[:], int(c.lastAddr))
	}
}

func wrapCopy(buf []byte, offset int, data []byte) {
	for i, b := range data {
		buf[(offset+i)%len(buf)] = b
	}
}

func wrapRead(out []byte, buf []byte, offset int) {
	for i := range out {
		out[i] = buf[(offset+i)%len(buf)]
	}
}

// maybeRunCommand performs the side effects of a Sn_CR write that a real
// chip would apply immediately: clearing the command register and, for
// OPEN, setting the appropriate status.
func (c *fakeChip) maybeRunCommand(slot uint8) {
	sock := &c.socket[slot]
	cmd := Command(sock.regs[regSockCommand.offset])
	if cmd == 0 {
		return
	}
	switch cmd {
	case CmdOpen:
		mode := SocketMode(sock.regs[regSockMode.offset] & 0x0F)
		switch mode {
		case ModeUDP:
			sock.regs[regSockStatus.offset] = byte(StatusUDP)
		case ModeTCP:
			sock.regs[regSockStatus.offset] = byte(StatusInit)
		}
	case CmdListen:
		sock.regs[regSockStatus.offset] = byte(StatusListen)
	case CmdConnect:
		sock.regs[regSockStatus.offset] = byte(StatusEstablished)
	case CmdClose, CmdDisconnect:
		sock.regs[regSockStatus.offset] = byte(StatusClosed)
	case CmdSend:
		writePtr := getU16(sock.regs[regSockTxWritePtr.offset:])
		putU16(sock.regs[regSockTxReadPtr.offset:], writePtr)
	case CmdRecv:
		// Nothing to simulate: rxRecvSize below is derived directly from
		// write/read pointers, which the driver has already updated.
	}
	sock.regs[regSockCommand.offset] = 0
}

// deliverUDP injects a received datagram as the chip would: an 8-byte
// header followed by payload, appended after the socket's current RX
// write pointer, with Sn_RX_RSR and Sn_RX_WR updated to match.
func (c *fakeChip) deliverUDP(slot uint8, srcIP [4]byte, srcPort uint16, payload []byte) {
	sock := &c.socket[slot]
	hdr := make([]byte, udpHeaderSize)
	copy(hdr[0:4], srcIP[:])
	putU16(hdr[4:6], srcPort)
	putU16(hdr[6:8], uint16(len(payload)))

	writePtr := getU16(sock.regs[regSockRxWritePtr.offset:])
	wrapCopy(sock.rx[:], int(writePtr), hdr)
	writePtr += uint16(len(hdr))
	wrapCopy(sock.rx[:], int(writePtr), payload)
	writePtr += uint16(len(payload))
	putU16(sock.regs[regSockRxWritePtr.offset:], writePtr)

	recvSize := getU16(sock.regs[regSockRxRecvSize.offset:])
	recvSize += uint16(len(hdr) + len(payload))
	putU16(sock.regs[regSockRxRecvSize.offset:], recvSize)
}

// refreshDerivedRegisters recomputes Sn_TX_FSR and Sn_RX_RSR from the
// write/read pointers before a register read, the same way a real chip
// derives them live rather than storing them directly.
func (c *fakeChip) refreshDerivedRegisters(slot uint8) {
	sock := &c.socket[slot]

	txBufSize := kibToBytes(sock.regs[regSockTxBufSize.offset])
	txWrite := getU16(sock.regs[regSockTxWritePtr.offset:])
	txRead := getU16(sock.regs[regSockTxReadPtr.offset:])
	putU16(sock.regs[regSockTxFreeSize.offset:], txBufSize-(txWrite-txRead))

	rxWrite := getU16(sock.regs[regSockRxWritePtr.offset:])
	rxRead := getU16(sock.regs[regSockRxReadPtr.offset:])
	putU16(sock.regs[regSockRxRecvSize.offset:], rxWrite-rxRead)
}
