// Package dhcp implements a DHCPv4 client state machine driven by a tick
// loop rather than blocking sockets, talking to a w5500.UDPSocket.
package dhcp

const (
	ServerPort = 67
	ClientPort = 68

	discoverBroadcastIntervalMs = 1000
	requestRetryIntervalMs      = 1000
	requestOverallTimeoutMs     = 10000

	// defaultLeaseSeconds stands in for an ACK's lease time when a server
	// omits option 51 entirely, which RFC 2131 permits but no real server
	// does in practice; chosen as a conservative middle ground so T1/T2
	// math still has something sane to divide.
	defaultLeaseSeconds uint64 = 3600

	magicCookie uint32 = 0x63825363
)

// operation is the BOOTP op field.
type operation uint8

const (
	opRequest operation = 1
	opReply   operation = 2
)

// MessageType is the DHCP message type option value (option 53).
type MessageType uint8

const (
	MsgDiscover MessageType = 1
	MsgOffer    MessageType = 2
	MsgRequest  MessageType = 3
	MsgDecline  MessageType = 4
	MsgAck      MessageType = 5
	MsgNak      MessageType = 6
	MsgRelease  MessageType = 7
	MsgInform   MessageType = 8
)

type option uint8

const (
	optSubnetMask       option = 1
	optRoutersOnSubnet  option = 3
	optDNS              option = 6
	optClientHostname   option = 12
	optDomainName       option = 15
	optRequestedIPAddr  option = 50
	optLeaseTime        option = 51
	optMessageType      option = 53
	optServerIdentifier option = 54
	optParamRequest     option = 55
	optT1Value          option = 58
	optT2Value          option = 59
	optClientIdentifier option = 61
	optEnd              option = 0xFF
)

// buildPacket appends the full BOOTP header plus options for msgType into a
// fresh buffer and returns it. Options are written sequentially into the
// growing buffer rather than poked into fixed offsets of a reused scratch
// array, so one option's bytes can never clobber another's.
func buildPacket(msgType MessageType, xid uint32, secsElapsed uint16, mac [6]byte, hostname string, requestedIP, serverIP [4]byte, includeRequestOptions bool) []byte {
	buf := make([]byte, 0, 300)

	buf = append(buf, uint8(opRequest), 0x01, 0x06, 0x00) // op, htype=ethernet, hlen=6, hops
	buf = appendU32(buf, xid)
	buf = appendU16(buf, secsElapsed)
	buf = appendU16(buf, 0x8000) // flags: broadcast

	buf = append(buf, make([]byte, 4*4)...) // ciaddr, yiaddr, siaddr, giaddr: all zero

	buf = append(buf, mac[:]...)
	buf = append(buf, make([]byte, 10)...) // chaddr padding to 16 bytes total
	buf = append(buf, make([]byte, 64)...) // sname
	buf = append(buf, make([]byte, 128)...) // file

	buf = appendU32(buf, magicCookie)

	buf = append(buf, uint8(optMessageType), 1, uint8(msgType))

	buf = append(buf, uint8(optClientIdentifier), 7, 0x01)
	buf = append(buf, mac[:]...)

	if hostname != "" {
		buf = append(buf, uint8(optClientHostname), uint8(len(hostname)))
		buf = append(buf, hostname...)
	}

	if includeRequestOptions {
		buf = append(buf, uint8(optRequestedIPAddr), 4)
		buf = append(buf, requestedIP[:]...)
		buf = append(buf, uint8(optServerIdentifier), 4)
		buf = append(buf, serverIP[:]...)
	}

	buf = append(buf, uint8(optParamRequest), 6,
		uint8(optSubnetMask), uint8(optRoutersOnSubnet), uint8(optDNS),
		uint8(optDomainName), uint8(optT1Value), uint8(optT2Value))

	buf = append(buf, uint8(optEnd))

	return buf
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
