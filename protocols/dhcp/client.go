package dhcp

import (
	"github.com/rschlaikjer/w5500-go/bus"
	"github.com/rschlaikjer/w5500-go/errcode"
	"github.com/rschlaikjer/w5500-go/x/mathx"
)

// State is a DHCP client lifecycle state.
type State int

const (
	StateStart State = iota
	StateDiscover
	StateRequest
	StateLeased
	StateRenew
	StateRelease
)

// Socket is the subset of w5500.UDPSocket the client drives.
type Socket interface {
	SetDestination(ip [4]byte, port uint16) error
	Send(payload []byte) error
	HasPacket() (bool, error)
	ReadPacketHeader() (srcIP [4]byte, srcPort uint16, err error)
	Read(buf []byte) (int, error)
	SkipToPacketEnd() error
}

// ChipConfigurer is the subset of *w5500.Driver the client programs once a
// lease is committed (or cleared). A lease is useless to the rest of the
// stack until it reaches the chip: the W5500 filters incoming IPv4
// traffic against SIPR/GAR/SUBR in hardware, not something this client
// can fake in software.
type ChipConfigurer interface {
	SetIP(ip [4]byte) error
	SetGateway(ip [4]byte) error
	SetSubnetMask(mask [4]byte) error
}

var broadcastIP = [4]byte{255, 255, 255, 255}
var zeroIP = [4]byte{}

// Lease is a snapshot of the currently held (or most recently held) lease.
type Lease struct {
	IP         [4]byte
	ServerIP   [4]byte
	SubnetMask [4]byte
	GatewayIP  [4]byte
	DNSServer  [4]byte
	LeaseTime  uint32
}

// Client drives a DHCPv4 lease acquisition/renewal state machine one tick
// at a time; it never blocks.
type Client struct {
	sock     Socket
	chip     ChipConfigurer
	bus      bus.Adapter
	mac      [6]byte
	hostname string

	state State
	lease Lease

	initialXID uint32
	xid        uint32

	leaseRequestStart     uint64
	lastDiscoverBroadcast uint64
	renewDeadline         uint64
	rebindDeadline        uint64
}

// New creates a DHCP client bound to an already-open UDP socket on port
// 68 and the chip driver it should program once a lease is committed.
func New(a bus.Adapter, sock Socket, chip ChipConfigurer, mac [6]byte, hostname string) *Client {
	return &Client{sock: sock, chip: chip, bus: a, mac: mac, hostname: hostname}
}

func (c *Client) State() State { return c.state }
func (c *Client) Lease() Lease { return c.lease }

// secondsElapsed computes how many seconds have passed since the current
// lease attempt started. The original driver computed this backwards
// (lease_request_start - now, which underflows to a huge value on any
// u64), so every DHCP request it sent reported a bogus, enormous "secs
// elapsed" field; here it is the straightforward now-minus-start.
func (c *Client) secondsElapsed(nowMs uint64) uint16 {
	if nowMs < c.leaseRequestStart {
		return 0
	}
	elapsed := (nowMs - c.leaseRequestStart) / 1000
	if elapsed > 0xFFFF {
		return 0xFFFF
	}
	return uint16(elapsed)
}

// Tick advances the state machine. Call it frequently from the same loop
// that services the rest of the stack.
func (c *Client) Tick(nowMs uint64) error {
	switch c.state {
	case StateStart:
		return c.fsmStart(nowMs)
	case StateDiscover:
		return c.fsmDiscover(nowMs)
	case StateRequest:
		return c.fsmRequest(nowMs)
	case StateLeased:
		return c.fsmLeased(nowMs)
	case StateRenew:
		return c.fsmRenew(nowMs)
	case StateRelease:
		c.state = StateStart
		return nil
	}
	return nil
}

func (c *Client) fsmStart(nowMs uint64) error {
	c.clearLease()
	c.initialXID = uint32(c.bus.Random())
	c.xid = c.initialXID
	c.leaseRequestStart = nowMs
	c.lastDiscoverBroadcast = nowMs
	if err := c.sendDiscover(nowMs); err != nil {
		return err
	}
	c.state = StateDiscover
	return nil
}

func (c *Client) fsmDiscover(nowMs uint64) error {
	r, ok, err := c.pollReply()
	if err != nil {
		return err
	}
	if ok && r.msgType == MsgOffer && xidInWindow(r.xid, c.initialXID, c.xid) {
		c.lease.IP = r.yourIP
		c.lease.ServerIP = r.serverIP
		c.state = StateRequest
		return c.sendRequest(nowMs)
	}

	if nowMs-c.lastDiscoverBroadcast >= discoverBroadcastIntervalMs {
		// Resend: only resends advance xid. The very first DISCOVER goes
		// out with xid == initial_xid; a server that answers the first
		// attempt must still be recognized even after several resends
		// have moved xid forward, hence the [initial_xid, xid] window
		// above instead of an exact match.
		c.xid++
		c.lastDiscoverBroadcast = nowMs
		return c.sendDiscover(nowMs)
	}
	return nil
}

func (c *Client) fsmRequest(nowMs uint64) error {
	if nowMs-c.leaseRequestStart >= requestOverallTimeoutMs {
		c.state = StateStart
		return nil
	}

	r, ok, err := c.pollReply()
	if err != nil {
		return err
	}
	if !ok || !xidInWindow(r.xid, c.initialXID, c.xid) {
		if nowMs-c.lastDiscoverBroadcast >= requestRetryIntervalMs {
			c.lastDiscoverBroadcast = nowMs
			return c.sendRequest(nowMs)
		}
		return nil
	}
	switch r.msgType {
	case MsgAck:
		return c.commitLease(r, nowMs)
	case MsgNak:
		return c.clearLeaseOnChip()
	}
	return nil
}

func (c *Client) fsmLeased(nowMs uint64) error {
	if nowMs >= c.rebindDeadline {
		return c.clearLeaseOnChip()
	}
	if nowMs >= c.renewDeadline {
		c.state = StateRenew
		c.lastDiscoverBroadcast = nowMs
		return c.sendRequest(nowMs)
	}
	return nil
}

func (c *Client) fsmRenew(nowMs uint64) error {
	if nowMs >= c.rebindDeadline {
		return c.clearLeaseOnChip()
	}

	r, ok, err := c.pollReply()
	if err != nil {
		return err
	}
	if ok && xidInWindow(r.xid, c.initialXID, c.xid) {
		switch r.msgType {
		case MsgAck:
			return c.commitLease(r, nowMs)
		case MsgNak:
			return c.clearLeaseOnChip()
		}
		return nil
	}
	if nowMs-c.lastDiscoverBroadcast >= requestRetryIntervalMs {
		c.lastDiscoverBroadcast = nowMs
		return c.sendRequest(nowMs)
	}
	return nil
}

// Release sends a DHCPRELEASE for the current lease and returns to START.
func (c *Client) Release(nowMs uint64) error {
	if c.state != StateLeased && c.state != StateRenew {
		return &errcode.E{C: errcode.ProgrammerError, Op: "dhcp.Release", Msg: "no active lease"}
	}
	if err := c.sock.SetDestination(c.lease.ServerIP, ServerPort); err != nil {
		return err
	}
	pkt := buildPacket(MsgRelease, c.xid, c.secondsElapsed(nowMs), c.mac, c.hostname, c.lease.IP, c.lease.ServerIP, false)
	if err := c.sock.Send(pkt); err != nil {
		return err
	}
	return c.clearLeaseOnChip()
}

// commitLease applies an ACK's lease fields, reprograms the chip's
// IP/gateway/mask, computes the T1/T2-derived renew and rebind deadlines,
// and transitions to LEASED.
func (c *Client) commitLease(r reply, nowMs uint64) error {
	c.applyLease(r)

	if err := c.chip.SetIP(c.lease.IP); err != nil {
		return err
	}
	if err := c.chip.SetGateway(c.lease.GatewayIP); err != nil {
		return err
	}
	if err := c.chip.SetSubnetMask(c.lease.SubnetMask); err != nil {
		return err
	}

	leaseSeconds := uint64(c.lease.LeaseTime)
	if leaseSeconds == 0 {
		leaseSeconds = defaultLeaseSeconds
	}
	t1 := r.t1
	if !r.hasT1 {
		t1 = uint32(mathx.RoundDiv(leaseSeconds, 2))
	}
	t2 := r.t2
	if !r.hasT2 {
		t2 = uint32(mathx.CeilDiv(leaseSeconds*7, 8))
	}

	c.leaseRequestStart = nowMs
	c.renewDeadline = nowMs + uint64(t1)*1000
	c.rebindDeadline = nowMs + uint64(t2)*1000
	c.state = StateLeased
	return nil
}

// clearLeaseOnChip resets the lease (and the chip's own IP/gateway/mask,
// which must not keep routing traffic for an address we no longer hold)
// and returns to START.
func (c *Client) clearLeaseOnChip() error {
	c.clearLease()
	if err := c.chip.SetIP(zeroIP); err != nil {
		return err
	}
	if err := c.chip.SetGateway(zeroIP); err != nil {
		return err
	}
	if err := c.chip.SetSubnetMask(zeroIP); err != nil {
		return err
	}
	c.state = StateStart
	return nil
}

func (c *Client) applyLease(r reply) {
	c.lease.IP = r.yourIP
	if r.serverIP != zeroIP {
		c.lease.ServerIP = r.serverIP
	}
	if r.hasSubnetMask {
		c.lease.SubnetMask = r.subnetMask
	}
	if r.hasGatewayIP {
		c.lease.GatewayIP = r.gatewayIP
	}
	if r.hasDNSServerIP {
		c.lease.DNSServer = r.dnsServerIP
	}
	if r.hasLeaseTime {
		c.lease.LeaseTime = r.leaseTime
	}
}

func (c *Client) clearLease() {
	c.lease = Lease{}
	c.renewDeadline = 0
	c.rebindDeadline = 0
}

func (c *Client) sendDiscover(nowMs uint64) error {
	if err := c.sock.SetDestination(broadcastIP, ServerPort); err != nil {
		return err
	}
	pkt := buildPacket(MsgDiscover, c.xid, c.secondsElapsed(nowMs), c.mac, c.hostname, zeroIP, zeroIP, false)
	return c.sock.Send(pkt)
}

func (c *Client) sendRequest(nowMs uint64) error {
	if err := c.sock.SetDestination(broadcastIP, ServerPort); err != nil {
		return err
	}
	pkt := buildPacket(MsgRequest, c.xid, c.secondsElapsed(nowMs), c.mac, c.hostname, c.lease.IP, c.lease.ServerIP, true)
	return c.sock.Send(pkt)
}

// pollReply drains at most one buffered datagram per tick and parses it.
func (c *Client) pollReply() (reply, bool, error) {
	has, err := c.sock.HasPacket()
	if err != nil || !has {
		return reply{}, false, err
	}
	if _, _, err := c.sock.ReadPacketHeader(); err != nil {
		return reply{}, false, err
	}
	buf := make([]byte, 576)
	n, err := c.sock.Read(buf)
	if err != nil {
		return reply{}, false, err
	}
	if err := c.sock.SkipToPacketEnd(); err != nil {
		return reply{}, false, err
	}
	r, ok := parseReply(buf[:n], c.mac)
	return r, ok, nil
}

// xidInWindow reports whether xid falls within [lo, hi] with wraparound
// tolerance, matching any reply to a DISCOVER that was retransmitted one
// or more times since the initial xid was chosen.
func xidInWindow(xid, lo, hi uint32) bool {
	if lo <= hi {
		return xid >= lo && xid <= hi
	}
	return xid >= lo || xid <= hi
}
