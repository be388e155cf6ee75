package dns

import (
	"github.com/rschlaikjer/w5500-go/errcode"
	"github.com/rschlaikjer/w5500-go/x/crc16"
)

const (
	Port           = 53
	maxPacketSize  = 256
	maxLabelLength = 255

	typeA   = 1
	classIN = 1
	flagsRD = 0x0100

	compressionPointerMask = 0b11000000
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

// Client resolves hostnames to IPv4 addresses against a single
// configured DNS server, caching answers by hostname CRC.
type Client struct {
	sock     Socket
	serverIP [4]byte
	cache    cache
}

func New(sock Socket, serverIP [4]byte) *Client {
	return &Client{sock: sock, serverIP: serverIP}
}

func (c *Client) SetServerIP(ip [4]byte) { c.serverIP = ip }

// Get returns a cached answer for hostname, if one hasn't expired.
func (c *Client) Get(hostname string, nowMs uint64) ([4]byte, bool) {
	return c.cache.get(crc16.OfString(hostname), nowMs)
}

// Query issues a query for hostname unless a cache entry already covers
// it, in which case it's a no-op; call Get afterwards (possibly several
// ticks later) to retrieve the answer once Update has processed a reply.
func (c *Client) Query(hostname string, nowMs uint64) error {
	queryID := crc16.OfString(hostname)
	if c.cache.hasEntry(queryID, nowMs) {
		return nil
	}

	if err := c.sock.SetDestination(c.serverIP, Port); err != nil {
		return err
	}
	pkt, err := buildQuery(queryID, hostname)
	if err != nil {
		return err
	}
	return c.sock.Send(pkt)
}

// Update drains and parses any buffered replies, storing answers in the
// cache. Call it every tick.
func (c *Client) Update(nowMs uint64) error {
	for {
		has, err := c.sock.HasPacket()
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		if err := c.parsePacket(nowMs); err != nil {
			return err
		}
	}
}

func (c *Client) parsePacket(nowMs uint64) error {
	_, _, length, err := c.sock.PeekPacket()
	if err != nil {
		return err
	}
	if length > maxPacketSize {
		// Too large to be a sane reply to our own query; drop it without
		// decoding so a malformed or malicious packet can't run the parser
		// off the end of a buffer sized for a normal answer.
		if _, _, err := c.sock.ReadPacketHeader(); err != nil {
			return err
		}
		return c.sock.SkipToPacketEnd()
	}

	if _, _, err := c.sock.ReadPacketHeader(); err != nil {
		return err
	}
	buf := make([]byte, length)
	if _, err := c.sock.Read(buf); err != nil {
		return err
	}
	if err := c.sock.SkipToPacketEnd(); err != nil {
		return err
	}

	queryID, addr, ttl, ok := parseAnswer(buf)
	if !ok {
		return nil
	}
	c.cache.store(queryID, addr, nowMs, ttl)
	return nil
}

// buildQuery encodes a 12-byte DNS header plus one question, with the
// transaction id set to the hostname's CRC-16 so cache lookups and wire
// query ids always agree.
func buildQuery(queryID uint16, hostname string) ([]byte, error) {
	buf := make([]byte, 0, 16+len(hostname)+6)
	buf = appendU16(buf, queryID)
	buf = appendU16(buf, flagsRD)
	buf = appendU16(buf, 1) // question count
	buf = appendU16(buf, 0) // answer count
	buf = appendU16(buf, 0) // authority count
	buf = appendU16(buf, 0) // additional count

	enc, err := encodeLabels(hostname)
	if err != nil {
		return nil, err
	}
	buf = append(buf, enc...)
	buf = appendU16(buf, typeA)
	buf = appendU16(buf, classIN)
	return buf, nil
}

func encodeLabels(hostname string) ([]byte, error) {
	var out []byte
	start := 0
	for i := 0; i <= len(hostname); i++ {
		if i == len(hostname) || hostname[i] == '.' {
			label := hostname[start:i]
			if len(label) > maxLabelLength {
				return nil, &errcode.E{C: errcode.ProgrammerError, Op: "dns.encodeLabels", Msg: "label too long"}
			}
			out = append(out, byte(len(label)))
			out = append(out, label...)
			start = i + 1
		}
	}
	out = append(out, 0)
	return out, nil
}

// parseAnswer walks a full DNS reply, skipping the question section and
// scanning answer records for the first A record, tolerating compression
// pointers in either section.
func parseAnswer(buf []byte) (queryID uint16, addr [4]byte, ttl uint32, ok bool) {
	if len(buf) < 12 {
		return
	}
	queryID = getU16(buf)
	flags := getU16(buf[2:])
	isAnswer := flags&0x8000 != 0
	rcode := flags & 0x000F
	if !isAnswer || rcode != 0 {
		return
	}
	questionCount := getU16(buf[4:])
	answerCount := getU16(buf[6:])

	offset := 12
	for i := uint16(0); i < questionCount; i++ {
		offset = skipName(buf, offset)
		offset += 4 // type + class
	}

	for i := uint16(0); i < answerCount; i++ {
		offset = skipName(buf, offset)
		if offset+10 > len(buf) {
			return
		}
		rrType := getU16(buf[offset:])
		rrClass := getU16(buf[offset+2:])
		rrTTL := getU32(buf[offset+4:])
		rdLength := getU16(buf[offset+8:])
		offset += 10

		if rrType == typeA && rrClass == classIN && rdLength == 4 && offset+4 <= len(buf) {
			copy(addr[:], buf[offset:offset+4])
			return queryID, addr, rrTTL, true
		}
		offset += int(rdLength)
	}
	return
}

// skipName advances past a (possibly compressed) name at offset and
// returns the offset just past it; a compression pointer always
// terminates the name in the outer message regardless of where it
// points, since the label data it points to lives elsewhere.
func skipName(buf []byte, offset int) int {
	for offset < len(buf) {
		length := buf[offset]
		if length&compressionPointerMask == compressionPointerMask {
			return offset + 2
		}
		if length == 0 {
			return offset + 1
		}
		offset += 1 + int(length)
	}
	return offset
}

func appendU16(buf []byte, v uint16) []byte { return append(buf, byte(v>>8), byte(v)) }
func getU16(b []byte) uint16                { return uint16(b[0])<<8 | uint16(b[1]) }
func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
