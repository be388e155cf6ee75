package w5500

import "github.com/rschlaikjer/w5500-go/errcode"

// UDPSocket is a handle onto one claimed hardware socket slot opened in
// UDP mode. Every received datagram is prefixed by the chip with an
// 8-byte header (4-byte source IP, 2-byte big-endian source port, 2-byte
// big-endian payload length); the socket tracks how many payload bytes
// remain in the datagram currently being read so a caller reading less
// than the full datagram doesn't bleed into the next one.
type UDPSocket struct {
	d    *Driver
	slot uint8

	remainingInPacket uint16
}

// Close releases the underlying socket slot. The handle must not be used
// afterwards.
func (s *UDPSocket) Close() error {
	err := s.d.command(s.slot, CmdClose)
	s.d.releaseSlot(s.slot)
	return err
}

// Ready reports whether the socket has finished opening (status UDP).
func (s *UDPSocket) Ready() (bool, error) {
	st, err := s.d.slotStatus(s.slot)
	if err != nil {
		return false, err
	}
	return st == StatusUDP, nil
}

// SetDestination sets the IP and port a subsequent Send targets.
func (s *UDPSocket) SetDestination(ip [4]byte, port uint16) error {
	if err := s.d.writeSocket(s.slot, regSockDestIP, ip[:]); err != nil {
		return err
	}
	return s.d.writeSocketU16(s.slot, regSockDestPort, port)
}

// HasPacket reports whether at least a datagram's 8-byte framing header is
// buffered; it does not check that the whole payload has arrived.
func (s *UDPSocket) HasPacket() (bool, error) {
	n, err := s.d.socketRecvSize(s.slot)
	if err != nil {
		return false, err
	}
	return n >= udpHeaderSize, nil
}

// PeekPacket returns the source IP, source port, and payload length of
// the next buffered datagram without consuming it.
func (s *UDPSocket) PeekPacket() (srcIP [4]byte, srcPort uint16, length uint16, err error) {
	hdr, err := s.d.socketPeek(s.slot, udpHeaderSize)
	if err != nil {
		return srcIP, 0, 0, err
	}
	copy(srcIP[:], hdr[0:4])
	srcPort = getU16(hdr[4:6])
	length = getU16(hdr[6:8])
	return srcIP, srcPort, length, nil
}

// ReadPacketHeader consumes the 8-byte framing header of the next
// datagram and arms remainingInPacket so subsequent Read calls stop at
// the datagram boundary. Callers normally call this once per datagram
// before reading its payload.
func (s *UDPSocket) ReadPacketHeader() (srcIP [4]byte, srcPort uint16, err error) {
	hdr, err := s.d.socketRead(s.slot, udpHeaderSize)
	if err != nil {
		return srcIP, 0, err
	}
	copy(srcIP[:], hdr[0:4])
	srcPort = getU16(hdr[4:6])
	s.remainingInPacket = getU16(hdr[6:8])
	return srcIP, srcPort, nil
}

// Read copies up to len(buf) bytes of the current datagram's payload,
// returning how many were actually read. It never reads past the
// datagram boundary established by ReadPacketHeader.
func (s *UDPSocket) Read(buf []byte) (int, error) {
	if s.remainingInPacket == 0 {
		return 0, nil
	}
	n := uint16(len(buf))
	if n > s.remainingInPacket {
		n = s.remainingInPacket
	}
	out, err := s.d.socketRead(s.slot, n)
	if err != nil {
		return 0, err
	}
	s.remainingInPacket -= n
	copy(buf, out)
	return int(n), nil
}

// SkipToPacketEnd discards whatever remains of the current datagram, for
// callers that only care about part of it.
func (s *UDPSocket) SkipToPacketEnd() error {
	if s.remainingInPacket == 0 {
		return nil
	}
	if err := s.d.socketSkip(s.slot, s.remainingInPacket); err != nil {
		return err
	}
	s.remainingInPacket = 0
	return nil
}

// Flush resets the socket's notion of the current datagram by zeroing the
// remaining-bytes counter. It does not discard any bytes still buffered in
// the RX ring and does not move the RX read pointer.
func (s *UDPSocket) Flush() {
	s.remainingInPacket = 0
}

// Send writes payload into the TX ring and transmits it as one datagram
// to the address set by SetDestination.
func (s *UDPSocket) Send(payload []byte) error {
	if len(payload) == 0 {
		return &errcode.E{C: errcode.ProgrammerError, Op: "w5500.UDPSocket.Send", Msg: "empty payload"}
	}
	if err := s.d.socketWrite(s.slot, payload); err != nil {
		return err
	}
	return s.d.socketSend(s.slot)
}
