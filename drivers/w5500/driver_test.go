package w5500

import "testing"

func TestInitReadsVersionAndClearsReset(t *testing.T) {
	chip := newFakeChip()
	d := New(chip)
	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}
	if chip.common[regMode.offset]&modeReset != 0 {
		t.Fatalf("MR.RST left set after Init")
	}
}

func TestSetGetMAC(t *testing.T) {
	d := New(newFakeChip())
	want := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	if err := d.SetMAC(want); err != nil {
		t.Fatalf("SetMAC() = %v", err)
	}
	got, err := d.MAC()
	if err != nil {
		t.Fatalf("MAC() = %v", err)
	}
	if got != want {
		t.Fatalf("MAC() = %v, want %v", got, want)
	}
}

func TestSetGetIPGatewaySubnet(t *testing.T) {
	d := New(newFakeChip())
	ip := [4]byte{192, 168, 1, 50}
	gw := [4]byte{192, 168, 1, 1}
	mask := [4]byte{255, 255, 255, 0}

	if err := d.SetIP(ip); err != nil {
		t.Fatalf("SetIP() = %v", err)
	}
	if err := d.SetGateway(gw); err != nil {
		t.Fatalf("SetGateway() = %v", err)
	}
	if err := d.SetSubnetMask(mask); err != nil {
		t.Fatalf("SetSubnetMask() = %v", err)
	}

	if got, _ := d.IP(); got != ip {
		t.Fatalf("IP() = %v, want %v", got, ip)
	}
	if got, _ := d.Gateway(); got != gw {
		t.Fatalf("Gateway() = %v, want %v", got, gw)
	}
	if got, _ := d.SubnetMask(); got != mask {
		t.Fatalf("SubnetMask() = %v, want %v", got, mask)
	}
}

func TestLinkUpReflectsPhycfgr(t *testing.T) {
	chip := newFakeChip()
	d := New(chip)
	chip.common[regPhyConfig.offset] = phycfgLinkUp
	up, err := d.LinkUp()
	if err != nil {
		t.Fatalf("LinkUp() = %v", err)
	}
	if !up {
		t.Fatalf("LinkUp() = false, want true")
	}
}

func TestClaimSlotExhaustion(t *testing.T) {
	d := New(newFakeChip())
	for i := 0; i < MaxSockets; i++ {
		if _, err := d.OpenUDP(uint16(1000 + i)); err != nil {
			t.Fatalf("OpenUDP() slot %d: %v", i, err)
		}
	}
	if _, err := d.OpenUDP(9999); err == nil {
		t.Fatalf("OpenUDP() on exhausted slots should fail")
	}
}

func TestCloseReleasesSlotForReuse(t *testing.T) {
	d := New(newFakeChip())
	sock, err := d.OpenUDP(1000)
	if err != nil {
		t.Fatalf("OpenUDP() = %v", err)
	}
	for i := 1; i < MaxSockets; i++ {
		if _, err := d.OpenUDP(uint16(1000 + i)); err != nil {
			t.Fatalf("OpenUDP() slot %d: %v", i, err)
		}
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, err := d.OpenUDP(2000); err != nil {
		t.Fatalf("OpenUDP() after Close() should succeed, got %v", err)
	}
}

func TestSetTxBufferSizeBudgetEnforced(t *testing.T) {
	d := New(newFakeChip())
	// 8 sockets at default 2KiB already sum to 16KiB; pushing any one
	// socket higher must be rejected.
	if err := d.SetTxBufferSize(0, BufSize4K); err == nil {
		t.Fatalf("SetTxBufferSize() over budget should fail")
	}
}

func TestSetTxBufferSizeWithinBudgetSucceeds(t *testing.T) {
	d := New(newFakeChip())
	for i := uint8(1); i < MaxSockets; i++ {
		if err := d.SetTxBufferSize(i, BufSize0); err != nil {
			t.Fatalf("SetTxBufferSize(%d, 0) = %v", i, err)
		}
	}
	if err := d.SetTxBufferSize(0, BufSize16K); err != nil {
		t.Fatalf("SetTxBufferSize() within budget should succeed, got %v", err)
	}
}

func TestUDPSendAndReceiveRoundTrip(t *testing.T) {
	chip := newFakeChip()
	d := New(chip)
	sock, err := d.OpenUDP(6000)
	if err != nil {
		t.Fatalf("OpenUDP() = %v", err)
	}
	ready, err := sock.Ready()
	if err != nil || !ready {
		t.Fatalf("Ready() = %v, %v", ready, err)
	}

	dest := [4]byte{10, 0, 0, 2}
	if err := sock.SetDestination(dest, 5000); err != nil {
		t.Fatalf("SetDestination() = %v", err)
	}
	payload := []byte("hello w5500")
	if err := sock.Send(payload); err != nil {
		t.Fatalf("Send() = %v", err)
	}

	// Simulate the peer's reply landing in the RX ring.
	chip.deliverUDP(0, dest, 5000, []byte("reply"))

	has, err := sock.HasPacket()
	if err != nil {
		t.Fatalf("HasPacket() = %v", err)
	}
	if !has {
		t.Fatalf("HasPacket() = false, want true")
	}

	srcIP, srcPort, length, err := sock.PeekPacket()
	if err != nil {
		t.Fatalf("PeekPacket() = %v", err)
	}
	if srcIP != dest || srcPort != 5000 || length != 5 {
		t.Fatalf("PeekPacket() = %v %d %d, want %v 5000 5", srcIP, srcPort, length, dest)
	}

	gotIP, gotPort, err := sock.ReadPacketHeader()
	if err != nil {
		t.Fatalf("ReadPacketHeader() = %v", err)
	}
	if gotIP != dest || gotPort != 5000 {
		t.Fatalf("ReadPacketHeader() = %v %d, want %v 5000", gotIP, gotPort, dest)
	}

	buf := make([]byte, 16)
	n, err := sock.Read(buf)
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if string(buf[:n]) != "reply" {
		t.Fatalf("Read() = %q, want %q", buf[:n], "reply")
	}
}

func TestUDPReadStopsAtDatagramBoundary(t *testing.T) {
	chip := newFakeChip()
	d := New(chip)
	sock, err := d.OpenUDP(6001)
	if err != nil {
		t.Fatalf("OpenUDP() = %v", err)
	}
	src := [4]byte{10, 0, 0, 3}
	chip.deliverUDP(0, src, 1234, []byte("AB"))
	chip.deliverUDP(0, src, 1234, []byte("CD"))

	if _, _, err := sock.ReadPacketHeader(); err != nil {
		t.Fatalf("ReadPacketHeader() = %v", err)
	}
	buf := make([]byte, 16)
	n, err := sock.Read(buf)
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if string(buf[:n]) != "AB" {
		t.Fatalf("first Read() = %q, want %q (must not bleed into next datagram)", buf[:n], "AB")
	}

	if _, _, err := sock.ReadPacketHeader(); err != nil {
		t.Fatalf("second ReadPacketHeader() = %v", err)
	}
	n, err = sock.Read(buf)
	if err != nil {
		t.Fatalf("second Read() = %v", err)
	}
	if string(buf[:n]) != "CD" {
		t.Fatalf("second Read() = %q, want %q", buf[:n], "CD")
	}
}

func TestTCPConnectReachesEstablished(t *testing.T) {
	d := New(newFakeChip())
	sock, err := d.OpenTCP(7000)
	if err != nil {
		t.Fatalf("OpenTCP() = %v", err)
	}
	if err := sock.Connect([4]byte{10, 0, 0, 5}, 80); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	connected, err := sock.Connected()
	if err != nil {
		t.Fatalf("Connected() = %v", err)
	}
	if !connected {
		t.Fatalf("Connected() = false, want true")
	}
}

func TestTCPEphemeralPortIncrements(t *testing.T) {
	d := New(newFakeChip())
	sock, err := d.OpenTCP(7001)
	if err != nil {
		t.Fatalf("OpenTCP() = %v", err)
	}
	if sock.ephemeralPort != 1 {
		t.Fatalf("initial ephemeralPort = %d, want 1", sock.ephemeralPort)
	}
	if err := sock.Connect([4]byte{10, 0, 0, 6}, 443); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	if sock.ephemeralPort != 2 {
		t.Fatalf("ephemeralPort after Connect() = %d, want 2", sock.ephemeralPort)
	}
}

func TestTCPWriteReadRoundTrip(t *testing.T) {
	chip := newFakeChip()
	d := New(chip)
	sock, err := d.OpenTCP(7002)
	if err != nil {
		t.Fatalf("OpenTCP() = %v", err)
	}
	if err := sock.Connect([4]byte{10, 0, 0, 7}, 9000); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	if _, err := sock.Write([]byte("ping")); err != nil {
		t.Fatalf("Write() = %v", err)
	}

	// Simulate the peer echoing back into the RX ring directly.
	sockState := &chip.socket[0]
	writePtr := getU16(sockState.regs[regSockRxWritePtr.offset:])
	wrapCopy(sockState.rx[:], int(writePtr), []byte("pong"))
	putU16(sockState.regs[regSockRxWritePtr.offset:], writePtr+4)

	buf := make([]byte, 16)
	n, err := sock.Read(buf)
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if string(buf[:n]) != "pong" {
		t.Fatalf("Read() = %q, want %q", buf[:n], "pong")
	}
}

func TestTCPWriteShortensToFreeSpace(t *testing.T) {
	chip := newFakeChip()
	d := New(chip)
	// Shrink socket 0's TX ring to 1KiB before opening, so a payload larger
	// than that is guaranteed a short write on the very first call. The
	// freed 1KiB is not enough to grow socket 1 to the next valid size
	// (4KiB): 1 + 4 + 6*2 = 17KiB exceeds the 16KiB/direction budget.
	if err := d.SetTxBufferSize(0, BufSize1K); err != nil {
		t.Fatalf("SetTxBufferSize(0) = %v", err)
	}
	if err := d.SetTxBufferSize(1, BufSize4K); err == nil {
		t.Fatalf("SetTxBufferSize(1, 4KiB) with only 1KiB freed should exceed the budget")
	}
	sock, err := d.OpenTCP(7003)
	if err != nil {
		t.Fatalf("OpenTCP() = %v", err)
	}
	if err := sock.Connect([4]byte{10, 0, 0, 8}, 9001); err != nil {
		t.Fatalf("Connect() = %v", err)
	}

	payload := make([]byte, 2048)
	n, err := sock.Write(payload)
	if err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if n != 1024 {
		t.Fatalf("Write() = %d, want 1024 (the configured TX buffer size)", n)
	}
}
