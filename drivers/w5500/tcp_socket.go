package w5500

// TCPSocket is a handle onto one claimed hardware socket slot opened in
// TCP mode. Unlike UDP, the TX/RX rings carry a plain byte stream with no
// per-message framing, so Read/Write simply move bytes.
type TCPSocket struct {
	d    *Driver
	slot uint8

	// ephemeralPort assigns source ports to outgoing Connects, starting at
	// 1 and incrementing on each call so repeated connects to the same
	// destination don't collide on a stale TIME_WAIT entry.
	ephemeralPort uint16
}

// Close releases the underlying socket slot. The handle must not be used
// afterwards.
func (s *TCPSocket) Close() error {
	err := s.d.command(s.slot, CmdClose)
	s.d.releaseSlot(s.slot)
	return err
}

// Status reads the socket's current TCP state.
func (s *TCPSocket) Status() (Status, error) {
	return s.d.slotStatus(s.slot)
}

// Ready reports whether the socket is in any state where it can still
// make progress towards or hold a connection (INIT, LISTEN, SYN_SENT,
// SYN_RECV, or ESTABLISHED) as opposed to a closing or closed state.
func (s *TCPSocket) Ready() (bool, error) {
	st, err := s.Status()
	if err != nil {
		return false, err
	}
	switch st {
	case StatusInit, StatusListen, StatusSynSent, StatusSynRecv, StatusEstablished:
		return true, nil
	default:
		return false, nil
	}
}

// Connected reports whether the connection has reached ESTABLISHED.
func (s *TCPSocket) Connected() (bool, error) {
	st, err := s.Status()
	if err != nil {
		return false, err
	}
	return st == StatusEstablished, nil
}

// Connect begins an active open to ip:port, using and advancing the
// socket's ephemeral source port counter.
func (s *TCPSocket) Connect(ip [4]byte, port uint16) error {
	if err := s.d.writeSocketU16(s.slot, regSockSourcePort, s.ephemeralPort); err != nil {
		return err
	}
	s.ephemeralPort++
	if err := s.d.writeSocket(s.slot, regSockDestIP, ip[:]); err != nil {
		return err
	}
	if err := s.d.writeSocketU16(s.slot, regSockDestPort, port); err != nil {
		return err
	}
	return s.d.command(s.slot, CmdConnect)
}

// Listen begins a passive open, waiting for an incoming connection on the
// port the socket was opened with.
func (s *TCPSocket) Listen() error {
	return s.d.command(s.slot, CmdListen)
}

// Disconnect initiates a graceful close (FIN).
func (s *TCPSocket) Disconnect() error {
	return s.d.command(s.slot, CmdDisconnect)
}

// Available reports how many received bytes are buffered and ready to
// Read.
func (s *TCPSocket) Available() (uint16, error) {
	return s.d.socketRecvSize(s.slot)
}

// Read copies up to len(buf) buffered bytes, returning how many were
// actually available.
func (s *TCPSocket) Read(buf []byte) (int, error) {
	avail, err := s.Available()
	if err != nil {
		return 0, err
	}
	n := uint16(len(buf))
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0, nil
	}
	out, err := s.d.socketRead(s.slot, n)
	if err != nil {
		return 0, err
	}
	copy(buf, out)
	return int(n), nil
}

// Write queues as much of payload as currently fits in the TX free space
// and transmits it immediately, returning the number of bytes actually
// written (0 if the buffer is full). Unlike UDPSocket.Send, a short write
// is not an error: TCP is a byte stream, so the caller just writes the
// remainder on a later tick.
func (s *TCPSocket) Write(payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, nil
	}
	n, err := s.d.socketWriteUpTo(s.slot, payload)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.d.socketSend(s.slot); err != nil {
		return 0, err
	}
	return n, nil
}
