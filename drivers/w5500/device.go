package w5500

import (
	"github.com/rschlaikjer/w5500-go/bus"
	"github.com/rschlaikjer/w5500-go/errcode"
)

// Driver owns one physical W5500 chip reachable over bus. It is not safe
// for concurrent use: every method must be called from the single
// cooperative tick loop.
type Driver struct {
	bus bus.Adapter

	// claimed is a bitset of socket slots currently handed out as a
	// UDPSocket or TCPSocket. A slot is released back to the pool when its
	// handle's Close is called.
	claimed uint8
}

// New wraps a bus.Adapter in a Driver. It does not touch the chip; call
// Init to reset it and bring the PHY up.
func New(a bus.Adapter) *Driver {
	return &Driver{bus: a}
}

// Init soft-resets the chip (sets MR.RST and polls until it clears),
// sanity-checks the chip version register, and unmasks every socket in
// SIMR. It does not read PHYCFGR or wait for the PHY; use LinkUp to check
// the link.
func (d *Driver) Init() error {
	if err := d.writeCommonU8(regMode, modeReset); err != nil {
		return err
	}

	deadline := d.bus.Millis() + resetTimeoutMs
	for {
		v, err := d.readCommonU8(regMode)
		if err != nil {
			return err
		}
		if v&modeReset == 0 {
			break
		}
		if d.bus.Millis() > deadline {
			return &errcode.E{C: errcode.TimedOut, Op: "w5500.Init", Msg: "soft reset did not clear"}
		}
	}

	ver, err := d.Version()
	if err != nil {
		return err
	}
	if ver != chipVersionExpected {
		return &errcode.E{C: errcode.Unavailable, Op: "w5500.Init", Msg: "unexpected chip version"}
	}

	// Let every socket's interrupt flags propagate into the common SIR
	// register so AnySocketInterruptPending can be used as a cheap poll
	// before walking all eight sockets individually.
	return d.writeCommonU8(regSocketInterruptMsk, 0xFF)
}

const resetTimeoutMs = 1000
const chipVersionExpected = 0x04

// Version reads the chip version register (VERSIONR), always 0x04 on a
// genuine W5500.
func (d *Driver) Version() (uint8, error) {
	return d.readCommonU8(regChipVersion)
}

// SetMAC / MAC manage the source hardware address (SHAR).
func (d *Driver) SetMAC(mac [6]byte) error { return d.writeCommon(regSourceHWAddr, mac[:]) }

func (d *Driver) MAC() ([6]byte, error) {
	var mac [6]byte
	b, err := d.readCommon(regSourceHWAddr)
	if err != nil {
		return mac, err
	}
	copy(mac[:], b)
	return mac, nil
}

// SetIP / IP manage the source IP address (SIPR).
func (d *Driver) SetIP(ip [4]byte) error { return d.writeCommon(regSourceIPAddr, ip[:]) }

func (d *Driver) IP() ([4]byte, error) { return d.readIPv4(regSourceIPAddr) }

// SetGateway / Gateway manage the default gateway (GAR).
func (d *Driver) SetGateway(ip [4]byte) error { return d.writeCommon(regGatewayAddr, ip[:]) }

func (d *Driver) Gateway() ([4]byte, error) { return d.readIPv4(regGatewayAddr) }

// SetSubnetMask / SubnetMask manage the subnet mask (SUBR).
func (d *Driver) SetSubnetMask(mask [4]byte) error { return d.writeCommon(regSubnetMask, mask[:]) }

func (d *Driver) SubnetMask() ([4]byte, error) { return d.readIPv4(regSubnetMask) }

func (d *Driver) readIPv4(r register) ([4]byte, error) {
	var ip [4]byte
	b, err := d.readCommon(r)
	if err != nil {
		return ip, err
	}
	copy(ip[:], b)
	return ip, nil
}

// SetForceARP enables MR.FARP, forcing an ARP request before every send
// regardless of the ARP cache entry's state.
func (d *Driver) SetForceARP(enabled bool) error {
	v, err := d.readCommonU8(regMode)
	if err != nil {
		return err
	}
	if enabled {
		v |= modeForceARP
	} else {
		v &^= modeForceARP
	}
	return d.writeCommonU8(regMode, v)
}

// LinkUp reports the PHY's latched link status (PHYCFGR.LNK).
func (d *Driver) LinkUp() (bool, error) {
	v, err := d.readCommonU8(regPhyConfig)
	if err != nil {
		return false, err
	}
	return v&phycfgLinkUp != 0, nil
}

// SetInterruptMask / InterruptMask manage which common interrupt sources
// (IP conflict, destination unreachable, PPPoE close, magic packet) surface
// in the IR register.
func (d *Driver) SetInterruptMask(mask CommonInterruptFlag) error {
	return d.writeCommonU8(regInterruptMask, uint8(mask))
}

func (d *Driver) InterruptMask() (CommonInterruptFlag, error) {
	v, err := d.readCommonU8(regInterruptMask)
	return CommonInterruptFlag(v), err
}

// InterruptState reads the latched common interrupt flags (IR).
func (d *Driver) InterruptState() (CommonInterruptFlag, error) {
	v, err := d.readCommonU8(regInterrupt)
	return CommonInterruptFlag(v), err
}

// ClearInterrupt writes one to the given common interrupt flag bits,
// clearing them.
func (d *Driver) ClearInterrupt(flags CommonInterruptFlag) error {
	return d.writeCommonU8(regInterrupt, uint8(flags))
}

// AnySocketInterruptPending reports whether any socket has a pending,
// unmasked interrupt flag (common SIR register), letting callers skip
// walking all eight sockets on a quiet tick.
func (d *Driver) AnySocketInterruptPending() (bool, error) {
	v, err := d.readCommonU8(regSocketInterrupt)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// slotMode and slotStatus are used by socket handles during open/ready
// checks; they are unexported because a slot's protocol is fixed for the
// lifetime of the handle that owns it.
func (d *Driver) slotMode(slot uint8) (SocketMode, error) {
	v, err := d.readSocketU8(slot, regSockMode)
	return SocketMode(v & 0x0F), err
}

func (d *Driver) slotStatus(slot uint8) (Status, error) {
	v, err := d.readSocketU8(slot, regSockStatus)
	return Status(v), err
}

// claimSlot reserves a free socket slot in [0, MaxSockets), or returns
// Unavailable if none remain.
func (d *Driver) claimSlot() (uint8, error) {
	for i := uint8(0); i < MaxSockets; i++ {
		if d.claimed&(1<<i) == 0 {
			d.claimed |= 1 << i
			return i, nil
		}
	}
	return 0, &errcode.E{C: errcode.Unavailable, Op: "w5500.claimSlot", Msg: "no free socket slot"}
}

func (d *Driver) releaseSlot(slot uint8) {
	d.claimed &^= 1 << slot
}

// OpenUDP claims a free socket slot, opens it in UDP mode bound to
// localPort, and returns a handle for sending and receiving datagrams.
func (d *Driver) OpenUDP(localPort uint16) (*UDPSocket, error) {
	slot, err := d.claimSlot()
	if err != nil {
		return nil, err
	}
	if err := d.openSlot(slot, ModeUDP, localPort); err != nil {
		d.releaseSlot(slot)
		return nil, err
	}
	return &UDPSocket{d: d, slot: slot}, nil
}

// OpenTCP claims a free socket slot and opens it in TCP mode bound to
// localPort, without yet connecting. Call Connect or Listen on the
// returned handle to advance it out of INIT.
func (d *Driver) OpenTCP(localPort uint16) (*TCPSocket, error) {
	slot, err := d.claimSlot()
	if err != nil {
		return nil, err
	}
	if err := d.openSlot(slot, ModeTCP, localPort); err != nil {
		d.releaseSlot(slot)
		return nil, err
	}
	return &TCPSocket{d: d, slot: slot, ephemeralPort: 1}, nil
}

func (d *Driver) openSlot(slot uint8, mode SocketMode, localPort uint16) error {
	if err := d.writeSocketU8(slot, regSockMode, uint8(mode)); err != nil {
		return err
	}
	if err := d.writeSocketU16(slot, regSockSourcePort, localPort); err != nil {
		return err
	}
	return d.command(slot, CmdOpen)
}
