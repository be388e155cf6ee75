// Package crc16 supplies the table-driven CRC-16 used to derive a stable
// DNS query id from a hostname.
//
// CRC16::update in the reference driver implements CRC-16/XMODEM by hand
// (poly 0x1021, initial value 0, no input/output reflection, no final xor).
// Rather than hand-roll that table again, this wraps github.com/sigurn/crc16
// configured with its XMODEM parameter set, which is bit-for-bit the same
// algorithm.
package crc16

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.XMODEM)

// Of computes the CRC-16/XMODEM checksum of data.
func Of(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// OfString computes the CRC-16/XMODEM checksum of a hostname's bytes,
// stable across retries so it can double as a DNS cache key.
func OfString(hostname string) uint16 {
	return Of([]byte(hostname))
}
