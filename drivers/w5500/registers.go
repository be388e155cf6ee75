// Package w5500 drives the WIZnet W5500 SPI Ethernet controller: register
// access, socket TX/RX ring buffers, and the eight hardware socket slots.
// Register offsets and bit layouts below are grounded on the chip's own
// bank map (common bank 0; per-socket n, registers at 4n+1, TX buffer at
// 4n+2, RX buffer at 4n+3).
package w5500

// MaxSockets is the number of independent hardware socket slots.
const MaxSockets = 8

const commonBank uint8 = 0x00

func socketRegBank(n uint8) uint8 { return n*4 + 1 }
func socketTxBank(n uint8) uint8  { return n*4 + 2 }
func socketRxBank(n uint8) uint8  { return n*4 + 3 }

// register is a compile-time (bank-relative offset, width) descriptor.
// Multi-byte values are big-endian: the most significant byte lives at the
// lowest offset.
type register struct {
	offset uint8
	width  uint8
}

// Common register block (bank 0).
var (
	regMode               = register{0x00, 1}
	regGatewayAddr        = register{0x01, 4}
	regSubnetMask         = register{0x05, 4}
	regSourceHWAddr       = register{0x09, 6}
	regSourceIPAddr       = register{0x0F, 4}
	regInterruptLevel     = register{0x13, 2}
	regInterrupt          = register{0x15, 1}
	regInterruptMask      = register{0x16, 1}
	regSocketInterrupt    = register{0x17, 1}
	regSocketInterruptMsk = register{0x18, 1}
	regRetryTime          = register{0x19, 2}
	regRetryCount         = register{0x1B, 1}
	regUnreachableIP      = register{0x28, 4}
	regUnreachablePort    = register{0x2C, 2}
	regPhyConfig          = register{0x2E, 1}
	regChipVersion        = register{0x39, 1}
)

// Per-socket register block (bank 4n+1).
var (
	regSockMode       = register{0x00, 1}
	regSockCommand    = register{0x01, 1}
	regSockInterrupt  = register{0x02, 1}
	regSockStatus     = register{0x03, 1}
	regSockSourcePort = register{0x04, 2}
	regSockDestHWAddr = register{0x06, 6}
	regSockDestIP     = register{0x0C, 4}
	regSockDestPort   = register{0x10, 2}
	regSockRxBufSize  = register{0x1E, 1}
	regSockTxBufSize  = register{0x1F, 1}
	regSockTxFreeSize = register{0x20, 2}
	regSockTxReadPtr  = register{0x22, 2}
	regSockTxWritePtr = register{0x24, 2}
	regSockRxRecvSize = register{0x26, 2}
	regSockRxReadPtr  = register{0x28, 2}
	regSockRxWritePtr = register{0x2A, 2}
)

// Mode register bits (common MR, 0x00).
const (
	modeReset    uint8 = 1 << 7
	modeForceARP uint8 = 1 << 1
)

// PHYCFGR bits (0x2E).
const (
	phycfgReset    uint8 = 1 << 7
	phycfgOpMode   uint8 = 1 << 6
	phycfgDuplex   uint8 = 1 << 2
	phycfgSpeed100 uint8 = 1 << 1
	phycfgLinkUp   uint8 = 1 << 0
)

// SocketMode is the socket protocol selector written to Sn_MR[3:0].
type SocketMode uint8

const (
	ModeClosed SocketMode = 0b0000
	ModeTCP    SocketMode = 0b0001
	ModeUDP    SocketMode = 0b0010
	ModeMACRAW SocketMode = 0b0100 // socket 0 only
)

// Command is a value written to Sn_CR to request a socket action.
type Command uint8

const (
	CmdOpen          Command = 0x01
	CmdListen        Command = 0x02
	CmdConnect       Command = 0x04
	CmdDisconnect    Command = 0x08
	CmdClose         Command = 0x10
	CmdSend          Command = 0x20
	CmdSendMAC       Command = 0x21
	CmdSendKeepAlive Command = 0x22
	CmdRecv          Command = 0x40
)

// SockInterruptFlag is a bit of Sn_IR (write-one-to-clear).
type SockInterruptFlag uint8

const (
	SockIntSendOK     SockInterruptFlag = 1 << 4
	SockIntTimeout    SockInterruptFlag = 1 << 3
	SockIntRecv       SockInterruptFlag = 1 << 2
	SockIntDisconnect SockInterruptFlag = 1 << 1
	SockIntConnect    SockInterruptFlag = 1 << 0
)

// CommonInterruptFlag is a bit of the common IR register.
type CommonInterruptFlag uint8

const (
	IntIPConflict  CommonInterruptFlag = 1 << 7
	IntUnreachable CommonInterruptFlag = 1 << 6
	IntPPPoEClosed CommonInterruptFlag = 1 << 5
	IntMagicPacket CommonInterruptFlag = 1 << 4
)

// Status is the value read back from Sn_SR.
type Status uint8

const (
	StatusClosed      Status = 0x00
	StatusInit        Status = 0x13
	StatusListen      Status = 0x14
	StatusSynSent     Status = 0x15
	StatusSynRecv     Status = 0x16
	StatusEstablished Status = 0x17
	StatusFinWait     Status = 0x18
	StatusClosing     Status = 0x1A
	StatusTimeWait    Status = 0x1B
	StatusCloseWait   Status = 0x1C
	StatusLastAck     Status = 0x1D
	StatusUDP         Status = 0x22
	StatusMACRAW      Status = 0x42
)

// BufferSize is a value written to Sn_RXBUF_SIZE / Sn_TXBUF_SIZE, in KiB.
type BufferSize uint8

const (
	BufSize0   BufferSize = 0
	BufSize1K  BufferSize = 1
	BufSize2K  BufferSize = 2
	BufSize4K  BufferSize = 4
	BufSize8K  BufferSize = 8
	BufSize16K BufferSize = 16
)

// maxBufferBudgetKiB is the total TX (or RX) budget across all 8 sockets.
const maxBufferBudgetKiB = 16

const udpHeaderSize = 8
