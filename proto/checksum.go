package proto

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

var be = binary.BigEndian

var ccittTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// BodyChecksum returns the CRC-16/CCITT checksum over body bytes.
// The header is not covered.
func BodyChecksum(body []byte) uint16 {
	return crc16.Checksum(body, ccittTable)
}
