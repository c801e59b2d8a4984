// Package ftsboot implements the SPI host protocol of FocalTech touch
// controllers and the ROM bootloader sequence used to load firmware into
// them.
//
// The package contains three main components: Channel, Bootloader and
// Updater. Channel frames commands, exchanges them full duplex over a Bus,
// validates the checksum of responses and retries failed exchanges.
// Bootloader provides a transport-agnostic way of interacting with the
// individual ROM boot commands. Programmer and Updater provide the high-level
// update sequence: firmware images are split into regions, written packet by
// packet and verified with the controller's ECC engine before the
// application is started.
//
// Also included is a command line tool, found in the cmd/ftsboot directory,
// that serves as both an example on how to use the library and a host
// program for updating controllers attached to a Linux SPI port.
package ftsboot

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// The Bootloader interface allows low-level interaction with the ROM boot
// commands in a transport-agnostic fashion.
// For higher level programming operations, use Programmer and Updater.
type Bootloader interface {
	Handshake() error
	ReadChipID() (uint16, error)
	SetAddress(address uint32) error
	WritePacket(data []byte) error
	StartECC(address uint32, length uint32) error
	ECCFinished() (bool, error)
	ReadECC() (uint16, error)
	StartApp() error
}

const (
	commandStart1      = 0x55
	commandStart2      = 0xAA
	commandStartApp    = 0x08
	commandReadID      = 0x90
	commandSetAddress  = 0xAD
	commandWritePacket = 0xAE
	commandECC         = 0xCC
	commandECCRead     = 0xCD
	commandECCFinish   = 0xCE
	commandTouchReport = 0x01
)

const (
	respLengthChipID    = 2
	respLengthECC       = 2
	respLengthECCFinish = 1
)

// eccReady is returned by the finish poll once the ECC is available.
const eccReady = 0xA5

// maxAddress is the largest address a 3-byte address field can carry.
const maxAddress = 0xFFFFFF

// Command represents a ROM boot command.
type Command struct {
	Opcode byte
	Data   []byte
	// Response length. Commands with a response are issued as reads.
	responseLength int
}

// GetBytes returns a byte slice containing the opcode and data of the command.
func (c Command) GetBytes() []byte {
	return append([]byte{c.Opcode}, c.Data...)
}

// GetResponseLength returns the expected number of response bytes.
func (c Command) GetResponseLength() int {
	return c.responseLength
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// NewHandshakeCommand returns the representation of the start sequence.
func NewHandshakeCommand() Command {
	return Command{Opcode: commandStart1, Data: []byte{commandStart2}}
}

// NewReadChipIDCommand returns the representation of the ReadChipID command.
func NewReadChipIDCommand() Command {
	return Command{Opcode: commandReadID, responseLength: respLengthChipID}
}

// NewSetAddressCommand returns the representation of the SetAddress command.
func NewSetAddressCommand(address uint32) Command {
	c := Command{Opcode: commandSetAddress, Data: make([]byte, 3)}
	put24(c.Data, address)
	return c
}

// NewWritePacketCommand returns the representation of the WritePacket command.
func NewWritePacketCommand(data []byte) Command {
	return Command{Opcode: commandWritePacket, Data: data}
}

// NewECCCommand returns the representation of the command that starts the
// ECC calculation over a memory range.
func NewECCCommand(address uint32, length uint32) Command {
	c := Command{Opcode: commandECC, Data: make([]byte, 6)}
	put24(c.Data[0:], address)
	put24(c.Data[3:], length)
	return c
}

// NewECCFinishCommand returns the representation of the ECC status poll.
func NewECCFinishCommand() Command {
	return Command{Opcode: commandECCFinish, responseLength: respLengthECCFinish}
}

// NewReadECCCommand returns the representation of the ReadECC command.
func NewReadECCCommand() Command {
	return Command{Opcode: commandECCRead, responseLength: respLengthECC}
}

// NewStartAppCommand returns the representation of the StartApp command.
func NewStartAppCommand() Command {
	return Command{Opcode: commandStartApp}
}

// NewTouchReportCommand returns the representation of the touch report read.
func NewTouchReportCommand() Command {
	return Command{Opcode: commandTouchReport, responseLength: touchReportLength}
}

type spiBootloader struct {
	ch *Channel
}

// NewBootloader creates a bootloader that issues its commands over ch.
func NewBootloader(ch *Channel) Bootloader {
	return &spiBootloader{ch: ch}
}

// MaxPacketSize returns the largest WritePacket payload the channel's bus
// can carry in one exchange.
func (b *spiBootloader) MaxPacketSize() int {
	return b.ch.MaxPayload()
}

func (b *spiBootloader) send(cmd Command) ([]byte, error) {
	if n := cmd.GetResponseLength(); n > 0 {
		return b.ch.Read(cmd.Opcode, n)
	}
	return nil, b.ch.Write(cmd.Opcode, cmd.Data...)
}

func (b *spiBootloader) Handshake() error {
	_, err := b.send(NewHandshakeCommand())
	return errors.Wrap(err, "handshake failed")
}

func (b *spiBootloader) ReadChipID() (uint16, error) {
	resp, err := b.send(NewReadChipIDCommand())
	if err != nil {
		return 0, errors.Wrap(err, "read chip id failed")
	}
	return binary.BigEndian.Uint16(resp), nil
}

func (b *spiBootloader) SetAddress(address uint32) error {
	if address > maxAddress {
		return errors.Wrapf(ErrFormat, "address %X does not fit 24 bits", address)
	}
	_, err := b.send(NewSetAddressCommand(address))
	return errors.Wrap(err, "set address failed")
}

func (b *spiBootloader) WritePacket(data []byte) error {
	_, err := b.send(NewWritePacketCommand(data))
	return errors.Wrap(err, "write packet failed")
}

func (b *spiBootloader) StartECC(address uint32, length uint32) error {
	if address > maxAddress || length > maxAddress {
		return errors.Wrapf(ErrFormat, "ecc range %X+%X does not fit 24 bits", address, length)
	}
	_, err := b.send(NewECCCommand(address, length))
	return errors.Wrap(err, "start ecc failed")
}

func (b *spiBootloader) ECCFinished() (bool, error) {
	resp, err := b.send(NewECCFinishCommand())
	if err != nil {
		return false, errors.Wrap(err, "ecc status failed")
	}
	return resp[0] == eccReady, nil
}

func (b *spiBootloader) ReadECC() (uint16, error) {
	resp, err := b.send(NewReadECCCommand())
	if err != nil {
		return 0, errors.Wrap(err, "read ecc failed")
	}
	return binary.BigEndian.Uint16(resp), nil
}

func (b *spiBootloader) StartApp() error {
	_, err := b.send(NewStartAppCommand())
	return errors.Wrap(err, "start app failed")
}
