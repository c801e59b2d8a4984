package ftsboot

import "github.com/sigurn/crc16"

// fcsCoef is the reversed generator of the region ECC.
const fcsCoef = 0x8408

// The transport checksum is CRC-16/MCRF4XX: seed 0xFFFF, reflected 0x1021,
// no final XOR.
var transportTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// TransportCRC computes the checksum the controller appends to every read
// response.
func TransportCRC(data []byte) uint16 {
	return crc16.Checksum(data, transportTable)
}

// RegionECC computes the error-check code the bootloader reports for a
// memory range: seed 0, one big-endian 16-bit word at a time. A trailing
// odd byte is treated as the high half of a word with a zero low half.
func RegionECC(data []byte) uint16 {
	var ecc uint16
	for i := 0; i < len(data); i += 2 {
		word := uint16(data[i]) << 8
		if i+1 < len(data) {
			word |= uint16(data[i+1])
		}
		ecc ^= word
		for j := 0; j < 16; j++ {
			if ecc&0x01 != 0 {
				ecc = (ecc >> 1) ^ fcsCoef
			} else {
				ecc >>= 1
			}
		}
	}
	return ecc
}
