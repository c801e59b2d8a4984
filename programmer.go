package ftsboot

import (
	"github.com/pkg/errors"
)

// Packet is a slice of a region written by one WritePacket command.
type Packet struct {
	Address uint32
	Data    []byte
}

// Packetize splits data, to be written at base, into packets of at most size
// bytes. Only the last packet may be shorter.
func Packetize(base uint32, data []byte, size int) []Packet {
	if size <= 0 {
		return nil
	}
	packets := make([]Packet, 0, (len(data)+size-1)/size)
	for offset := 0; offset < len(data); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		packets = append(packets, Packet{
			Address: base + uint32(offset),
			Data:    data[offset:end],
		})
	}
	return packets
}

// EccSpans splits length bytes starting at base into spans of at most size
// bytes.
func EccSpans(base uint32, length int, size int) []EccSpan {
	if size <= 0 {
		return nil
	}
	spans := make([]EccSpan, 0, (length+size-1)/size)
	for offset := 0; offset < length; offset += size {
		n := size
		if length-offset < n {
			n = length - offset
		}
		spans = append(spans, EccSpan{Address: base + uint32(offset), Length: uint32(n)})
	}
	return spans
}

// packetLimiter is implemented by bootloaders whose transport caps the size
// of a WritePacket payload.
type packetLimiter interface {
	MaxPacketSize() int
}

// ProgressFunc is called after each packet with the number of bytes of the
// region written so far.
type ProgressFunc func(region string, written, total int)

// Programmer writes memory regions through a Bootloader and verifies them.
type Programmer struct {
	bootloader Bootloader
	verifier   *EccVerifier
	profile    Profile
	progress   ProgressFunc
}

// NewProgrammer creates a new programmer.
func NewProgrammer(bootloader Bootloader, profile Profile) *Programmer {
	return &Programmer{
		bootloader: bootloader,
		verifier:   NewEccVerifier(bootloader, profile),
		profile:    profile,
	}
}

// SetProgressFunc installs a progress callback. Passing nil removes it.
func (p *Programmer) SetProgressFunc(f ProgressFunc) {
	p.progress = f
}

// Program writes src to region and verifies it. The first failure aborts
// programming; the region is then left partially written.
func (p *Programmer) Program(region MemoryRegion, src []byte) error {
	if err := p.profile.Validate(); err != nil {
		return errors.Wrap(err, "invalid profile")
	}
	if len(src) < region.Length {
		return errors.Wrapf(ErrFormat, "%s region needs %d bytes, got %d", region.Name, region.Length, len(src))
	}
	src = src[:region.Length]

	size, err := p.packetSize()
	if err != nil {
		return err
	}
	packets := Packetize(region.Address, src, size)
	pkgLog.Infof("writing %s: %d bytes in %d packets", region.Name, region.Length, len(packets))
	written := 0
	for _, packet := range packets {
		if err := p.bootloader.SetAddress(packet.Address); err != nil {
			return &ProgramError{Region: region.Name, Address: packet.Address, Err: err}
		}
		if err := p.bootloader.WritePacket(packet.Data); err != nil {
			return &ProgramError{Region: region.Name, Address: packet.Address, Err: err}
		}
		written += len(packet.Data)
		if p.progress != nil {
			p.progress(region.Name, written, region.Length)
		}
	}

	return p.Verify(region, src)
}

// Verify checks a written region against src with the controller's ECC
// engine, one span at a time.
func (p *Programmer) Verify(region MemoryRegion, src []byte) error {
	if err := p.profile.Validate(); err != nil {
		return errors.Wrap(err, "invalid profile")
	}
	if len(src) < region.Length {
		return errors.Wrapf(ErrFormat, "%s region needs %d bytes, got %d", region.Name, region.Length, len(src))
	}
	offset := 0
	for _, span := range EccSpans(region.Address, region.Length, p.profile.EccPacketSize) {
		data := src[offset : offset+int(span.Length)]
		if _, err := p.verifier.Verify(span, data); err != nil {
			return &ProgramError{Region: region.Name, Address: span.Address, Err: err}
		}
		offset += int(span.Length)
	}
	pkgLog.Infof("%s verified", region.Name)
	return nil
}

// packetSize returns the profile's packet size, reduced to what the
// bootloader's transport can carry.
func (p *Programmer) packetSize() (int, error) {
	size := p.profile.PacketSize
	if l, ok := p.bootloader.(packetLimiter); ok {
		limit := l.MaxPacketSize()
		if limit <= 0 {
			return 0, errors.Wrap(ErrResource, "bus cannot carry a write packet")
		}
		if limit < size {
			pkgLog.Debugf("packet size limited to %d by the bus", limit)
			size = limit
		}
	}
	return size, nil
}
