package ftsboot

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Profile defines the memory layout and timing of a controller family.
type Profile struct {
	// Base address of the bootloader (PRAM) region.
	PramAddress uint32
	// Base address of the application (DRAM) region.
	DramAddress uint32
	// Offset of the code length fields in the firmware image.
	AppInfoOffset uint32
	// Maximum number of bytes written by a single WritePacket command.
	PacketSize int
	// Maximum number of bytes covered by a single ECC calculation.
	EccPacketSize int
	// Size of the reusable transfer buffers.
	BufferSize int
	// Number of attempts for each bus exchange.
	Retries int
	// Number of ECC status polls before giving up.
	EccPollLimit int
	// Delay between requesting an ECC and the first status poll.
	EccSettle time.Duration
	// Delay between ECC status polls.
	EccPollInterval time.Duration
	// Delay after starting the application.
	StartSettle time.Duration
}

// DefaultProfile returns the profile of FocalTech SPI controllers.
func DefaultProfile() Profile {
	return Profile{
		PramAddress:     0x000000,
		DramAddress:     0xD00000,
		AppInfoOffset:   0x100,
		PacketSize:      4*1024 - 4,
		EccPacketSize:   0xFFFE,
		BufferSize:      DefaultBufferSize,
		Retries:         DefaultRetries,
		EccPollLimit:    100,
		EccSettle:       2 * time.Millisecond,
		EccPollInterval: time.Millisecond,
		StartSettle:     1500 * time.Microsecond,
	}
}

// Validate checks that the profile can drive an update.
func (p Profile) Validate() error {
	switch {
	case p.PacketSize <= 0 || p.PacketSize > maxFrameData:
		return errors.Errorf("invalid packet size %d", p.PacketSize)
	case p.EccPacketSize <= 0 || p.EccPacketSize > maxAddress:
		return errors.Errorf("invalid ecc packet size %d", p.EccPacketSize)
	case p.EccPacketSize&1 == 1:
		// ECC spans must cover whole words.
		return errors.Errorf("ecc packet size %d is odd", p.EccPacketSize)
	case p.BufferSize <= frameDataOffset+frameCRCLen:
		return errors.Errorf("invalid buffer size %d", p.BufferSize)
	case p.Retries <= 0:
		return errors.Errorf("invalid retry count %d", p.Retries)
	case p.EccPollLimit <= 0:
		return errors.Errorf("invalid ecc poll limit %d", p.EccPollLimit)
	case p.PramAddress > maxAddress || p.DramAddress > maxAddress:
		return errors.Errorf("region addresses %X, %X do not fit 24 bits", p.PramAddress, p.DramAddress)
	}
	return nil
}

// LoadProfile reads a YAML profile. Fields missing from the document keep
// their DefaultProfile values.
func LoadProfile(r io.Reader) (Profile, error) {
	p := DefaultProfile()
	data, err := io.ReadAll(r)
	if err != nil {
		return p, errors.Wrap(err, "failed to read profile")
	}
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return p, errors.Wrap(err, "failed to parse profile")
	}
	if err := p.Validate(); err != nil {
		return p, errors.Wrap(err, "invalid profile")
	}
	return p, nil
}
