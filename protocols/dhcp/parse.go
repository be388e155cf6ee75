package dhcp

// headerSize is the prefix of the BOOTP header parseContext tracks
// byte-by-byte: op through giaddr, plus the first 6 bytes of chaddr (the
// chip MAC a DHCPv4 client puts there), which a reply must echo back
// unchanged. The remaining 10 bytes of chaddr, sname, and file follow but
// carry nothing this client reads, so they're skipped rather than parsed.
const headerSize = 34

// bootpFixedSize is the full fixed-length BOOTP header (op..file) that
// precedes the magic cookie and options in every packet.
const bootpFixedSize = 236

// parseContext incrementally consumes a BOOTP header across however many
// chunks the caller happens to read off the wire, so a slow or fragmented
// UDP read never has to buffer the whole reply before starting to parse
// it. consume returns the number of bytes it took from data.
type parseContext struct {
	offset int

	op     uint8
	xid    uint32
	yiaddr [4]byte
	siaddr [4]byte
	chaddr [6]byte
}

func (p *parseContext) consume(data []byte) int {
	n := 0
	for n < len(data) && p.offset < headerSize {
		b := data[n]
		switch p.offset {
		case 0:
			p.op = b
		case 4:
			p.xid |= uint32(b) << 24
		case 5:
			p.xid |= uint32(b) << 16
		case 6:
			p.xid |= uint32(b) << 8
		case 7:
			p.xid |= uint32(b)
		case 16:
			p.yiaddr[0] = b
		case 17:
			p.yiaddr[1] = b
		case 18:
			p.yiaddr[2] = b
		case 19:
			p.yiaddr[3] = b
		case 20:
			p.siaddr[0] = b
		case 21:
			p.siaddr[1] = b
		case 22:
			p.siaddr[2] = b
		case 23:
			p.siaddr[3] = b
		case 28:
			p.chaddr[0] = b
		case 29:
			p.chaddr[1] = b
		case 30:
			p.chaddr[2] = b
		case 31:
			p.chaddr[3] = b
		case 32:
			p.chaddr[4] = b
		case 33:
			p.chaddr[5] = b
		}
		p.offset++
		n++
	}
	return n
}

func (p *parseContext) done() bool { return p.offset >= headerSize }

// reply is a fully decoded DHCP response: the BOOTP header fields we care
// about plus the options we look for.
type reply struct {
	xid         uint32
	yourIP      [4]byte
	serverIP    [4]byte
	msgType     MessageType
	subnetMask  [4]byte
	gatewayIP   [4]byte
	dnsServerIP [4]byte
	leaseTime   uint32
	t1          uint32
	t2          uint32

	hasSubnetMask  bool
	hasGatewayIP   bool
	hasDNSServerIP bool
	hasLeaseTime   bool
	hasT1          bool
	hasT2          bool
}

// parseReply decodes a complete DHCP datagram payload (header, magic
// cookie, and options). It rejects anything that isn't a BOOTREPLY (op 2)
// addressed to ourMAC: op 1 is BOOTREQUEST, what a client itself sends,
// and a DHCP client should never act on hearing its own request type
// echoed back; a chaddr mismatch means the reply is answering some other
// client's transaction (this chip's own retransmits notwithstanding — the
// caller also checks xid is in its accepted window).
func parseReply(data []byte, ourMAC [6]byte) (reply, bool) {
	var r reply
	var ctx parseContext
	ctx.consume(data)
	if !ctx.done() || operation(ctx.op) != opReply || ctx.chaddr != ourMAC {
		return r, false
	}
	r.xid = ctx.xid
	r.yourIP = ctx.yiaddr
	r.serverIP = ctx.siaddr

	if len(data) < bootpFixedSize+4 {
		return r, false
	}
	cookieOff := bootpFixedSize
	if getU32(data[cookieOff:]) != magicCookie {
		return r, false
	}

	i := cookieOff + 4
	for i < len(data) {
		tag := option(data[i])
		if tag == optEnd {
			break
		}
		if i+1 >= len(data) {
			break
		}
		length := int(data[i+1])
		valStart := i + 2
		if valStart+length > len(data) {
			break
		}
		val := data[valStart : valStart+length]

		switch tag {
		case optMessageType:
			if length == 1 {
				r.msgType = MessageType(val[0])
			}
		case optSubnetMask:
			if length == 4 {
				copy(r.subnetMask[:], val)
				r.hasSubnetMask = true
			}
		case optRoutersOnSubnet:
			if length >= 4 {
				copy(r.gatewayIP[:], val[:4])
				r.hasGatewayIP = true
			}
		case optDNS:
			if length >= 4 {
				copy(r.dnsServerIP[:], val[:4])
				r.hasDNSServerIP = true
			}
		case optServerIdentifier:
			if length == 4 {
				copy(r.serverIP[:], val)
			}
		case optLeaseTime:
			if length == 4 {
				r.leaseTime = getU32(val)
				r.hasLeaseTime = true
			}
		case optT1Value:
			if length == 4 {
				r.t1 = getU32(val)
				r.hasT1 = true
			}
		case optT2Value:
			if length == 4 {
				r.t2 = getU32(val)
				r.hasT2 = true
			}
		}

		i = valStart + length
	}

	return r, true
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
