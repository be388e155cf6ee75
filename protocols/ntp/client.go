// Package ntp implements an SNTP (RFC 4330) client-mode query, polling a
// configured server at an interval the server itself adjusts.
package ntp

import "github.com/rschlaikjer/w5500-go/errcode"

const (
	Port       = 123
	packetSize = 48

	// ntpUnixEpochDeltaSeconds is the number of seconds between the NTP
	// epoch (1900-01-01) and the Unix epoch (1970-01-01).
	ntpUnixEpochDeltaSeconds = 2208988800

	requestIntervalMs = 30000

	modeClient  = 0x03
	liNoWarning = 0b000 << 3
	versionV4   = 0b100 << 3
)

// Socket is the subset of w5500.UDPSocket the client drives.
type Socket interface {
	SetDestination(ip [4]byte, port uint16) error
	Send(payload []byte) error
	HasPacket() (bool, error)
	PeekPacket() (srcIP [4]byte, srcPort uint16, length uint16, err error)
	ReadPacketHeader() (srcIP [4]byte, srcPort uint16, err error)
	Read(buf []byte) (int, error)
	SkipToPacketEnd() error
}

// Client issues SNTP requests and reports the most recently received
// time, converted to Unix epoch milliseconds.
type Client struct {
	sock     Socket
	serverIP [4]byte

	lastRequestMs    uint64
	lastResponseMs   uint64
	pollIntervalLog2 uint8 // server-dictated poll interval, log2(seconds)

	lastUnixMs uint64
	hasTime    bool
}

func New(sock Socket, serverIP [4]byte) *Client {
	return &Client{sock: sock, serverIP: serverIP, pollIntervalLog2: 1}
}

func (c *Client) SetServerIP(ip [4]byte) { c.serverIP = ip }

// Now returns the most recently received time and whether one has ever
// been received.
func (c *Client) Now() (uint64, bool) { return c.lastUnixMs, c.hasTime }

// Update drains any buffered reply and, if the server's poll interval has
// elapsed since the last response (and at least requestIntervalMs has
// passed since the last request, to bound retry rate), sends a new
// request. Call it every tick.
func (c *Client) Update(nowMs uint64) error {
	for {
		has, err := c.sock.HasPacket()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		if err := c.parsePacket(nowMs); err != nil {
			return err
		}
	}

	pollIntervalMs := uint64(1) << c.pollIntervalLog2 * 1000
	sinceResponse := nowMs - c.lastResponseMs
	sinceRequest := nowMs - c.lastRequestMs
	if sinceResponse > pollIntervalMs && sinceRequest > requestIntervalMs {
		return c.sendRequest(nowMs)
	}
	return nil
}

func (c *Client) sendRequest(nowMs uint64) error {
	if err := c.sock.SetDestination(c.serverIP, Port); err != nil {
		return err
	}
	buf := make([]byte, packetSize)
	buf[0] = liNoWarning | versionV4 | modeClient
	if err := c.sock.Send(buf); err != nil {
		return err
	}
	c.lastRequestMs = nowMs
	return nil
}

func (c *Client) parsePacket(nowMs uint64) error {
	_, _, length, err := c.sock.PeekPacket()
	if err != nil {
		return err
	}
	if length < packetSize {
		if _, _, err := c.sock.ReadPacketHeader(); err != nil {
			return err
		}
		return c.sock.SkipToPacketEnd()
	}

	if _, _, err := c.sock.ReadPacketHeader(); err != nil {
		return err
	}
	buf := make([]byte, packetSize)
	if _, err := c.sock.Read(buf); err != nil {
		return err
	}
	if err := c.sock.SkipToPacketEnd(); err != nil {
		return err
	}

	unixMs, err := decodeTransmitTimestamp(buf)
	if err != nil {
		return err
	}
	c.lastUnixMs = unixMs
	c.hasTime = true
	c.lastResponseMs = nowMs
	c.pollIntervalLog2 = buf[2]
	return nil
}

// decodeTransmitTimestamp reads the 64-bit NTP transmit timestamp
// (seconds at buf[40:44], fraction at buf[44:48]) and converts it to Unix
// epoch milliseconds.
func decodeTransmitTimestamp(buf []byte) (uint64, error) {
	if len(buf) < packetSize {
		return 0, &errcode.E{C: errcode.MalformedFrame, Op: "ntp.decodeTransmitTimestamp", Msg: "short packet"}
	}
	ntpSeconds := getU32(buf[40:])
	if ntpSeconds < ntpUnixEpochDeltaSeconds {
		return 0, &errcode.E{C: errcode.MalformedFrame, Op: "ntp.decodeTransmitTimestamp", Msg: "timestamp before unix epoch"}
	}
	unixSeconds := uint64(ntpSeconds - ntpUnixEpochDeltaSeconds)

	fraction := getU32(buf[44:])
	fractionMs := uint64(fraction) / (0xFFFFFFFF / 1000)

	return unixSeconds*1000 + fractionMs, nil
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
