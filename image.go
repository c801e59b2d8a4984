package ftsboot

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// Region names.
const (
	RegionPram = "pram"
	RegionDram = "dram"
)

// Offsets of the code length fields, relative to Profile.AppInfoOffset.
// Code lengths count 16-bit words.
const (
	pramLenOffset  = 0x00
	pramLenNOffset = 0x02
	dramLenOffset  = 0x08
	dramLenNOffset = 0x0A
)

// MemoryRegion is one of the two memory areas written during an update.
type MemoryRegion struct {
	Name string
	// Target address of the first byte.
	Address uint32
	// Number of bytes to write.
	Length int
	// Position of the first byte in the firmware image.
	Offset int
}

// Image is a firmware image as shipped by the vendor.
type Image struct {
	data    []byte
	profile Profile
}

// ParseImage wraps raw firmware bytes. The header is not checked until a
// region is requested.
func ParseImage(data []byte, profile Profile) (*Image, error) {
	if int(profile.AppInfoOffset)+dramLenNOffset+2 > len(data) {
		return nil, errors.Wrapf(ErrFormat, "image of %d bytes is too short for a header at %X", len(data), profile.AppInfoOffset)
	}
	return &Image{data: data, profile: profile}, nil
}

// LoadImage reads a firmware image. Intel HEX input, recognised by a ".hex"
// extension, is flattened to a binary starting at its lowest address with
// gaps filled with 0xFF.
func LoadImage(r io.Reader, name string, profile Profile) (*Image, error) {
	if strings.EqualFold(filepath.Ext(name), ".hex") {
		mem := gohex.NewMemory()
		if err := mem.ParseIntelHex(r); err != nil {
			return nil, errors.Wrapf(ErrFormat, "failed to parse hex file: %v", err)
		}
		segments := mem.GetDataSegments()
		if len(segments) == 0 {
			return nil, errors.Wrap(ErrFormat, "hex file contains no data")
		}
		start, end := segments[0].Address, uint32(0)
		for _, s := range segments {
			if s.Address < start {
				start = s.Address
			}
			if e := s.Address + uint32(len(s.Data)); e > end {
				end = e
			}
		}
		pkgLog.Debugf("loaded %d hex segments covering %X-%X", len(segments), start, end)
		return ParseImage(mem.ToBinary(start, end-start, 0xFF), profile)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}
	return ParseImage(buf.Bytes(), profile)
}

// LoadImageFile reads a firmware image from a file.
func LoadImageFile(fileName string, profile Profile) (*Image, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadImage(file, fileName, profile)
}

// Bytes returns the raw image.
func (img *Image) Bytes() []byte {
	return img.data
}

func (img *Image) word(offset int) uint16 {
	return binary.BigEndian.Uint16(img.data[int(img.profile.AppInfoOffset)+offset:])
}

// PramRegion validates the bootloader code length and returns the region it
// describes.
func (img *Image) PramRegion() (MemoryRegion, error) {
	codeLen, codeLenN := img.word(pramLenOffset), img.word(pramLenNOffset)
	if uint32(codeLen)+uint32(codeLenN) != 0xFFFF {
		return MemoryRegion{}, &HeaderError{Region: RegionPram, Length: codeLen, Complement: codeLenN}
	}
	return img.region(MemoryRegion{
		Name:    RegionPram,
		Address: img.profile.PramAddress,
		Length:  int(codeLen) * 2,
	})
}

// DramRegion validates the application code length and returns the region
// it describes. The application follows the bootloader in the image; its
// offset is taken from the bootloader length word, which is read again here.
func (img *Image) DramRegion() (MemoryRegion, error) {
	codeLen, codeLenN := img.word(dramLenOffset), img.word(dramLenNOffset)
	if uint32(codeLen)+uint32(codeLenN) != 0xFFFF || codeLen == 0 {
		return MemoryRegion{}, &HeaderError{Region: RegionDram, Length: codeLen, Complement: codeLenN}
	}
	return img.region(MemoryRegion{
		Name:    RegionDram,
		Address: img.profile.DramAddress,
		Length:  int(codeLen) * 2,
		Offset:  int(img.word(pramLenOffset)) * 2,
	})
}

func (img *Image) region(r MemoryRegion) (MemoryRegion, error) {
	if r.Offset+r.Length > len(img.data) {
		return MemoryRegion{}, errors.Wrapf(ErrFormat, "%s region %X+%X exceeds image of %X bytes",
			r.Name, r.Offset, r.Length, len(img.data))
	}
	if uint64(r.Address)+uint64(r.Length) > maxAddress+1 {
		return MemoryRegion{}, errors.Wrapf(ErrFormat, "%s region at %06X length %X exceeds address space",
			r.Name, r.Address, r.Length)
	}
	return r, nil
}

// Source returns the image bytes of a region.
func (img *Image) Source(r MemoryRegion) []byte {
	return img.data[r.Offset : r.Offset+r.Length]
}
