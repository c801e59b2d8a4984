package ftsboot

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// simController emulates the ROM bootloader of a controller on the far side
// of the bus.
type simController struct {
	mu sync.Mutex

	chipID  uint16
	memory  map[uint32]byte
	address uint32
	started bool
	shaken  bool
	report  []byte

	eccAddress uint32
	eccLength  uint32
	eccPolls   int
	// Number of polls answered with "busy" before the ECC is ready.
	eccBusy int
	// Added to every ECC the controller reports.
	eccSkew uint16

	// Per opcode count of exchanges answered with an error status.
	statusFailures map[byte]int
	// Per opcode count of reads answered with a corrupt trailer.
	crcFailures map[byte]int
	// Per opcode count of exchanges failing on the bus.
	busFailures map[byte]int

	frames   [][]byte
	inFlight int32
	overlaps int32
}

var errBus = errors.New("bus fault")

func newSimController() *simController {
	return &simController{
		chipID:         0x8756,
		memory:         map[uint32]byte{},
		statusFailures: map[byte]int{},
		crcFailures:    map[byte]int{},
		busFailures:    map[byte]int{},
	}
}

func (s *simController) Tx(w, r []byte) error {
	if atomic.AddInt32(&s.inFlight, 1) > 1 {
		atomic.AddInt32(&s.overlaps, 1)
	}
	defer atomic.AddInt32(&s.inFlight, -1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(w) != len(r) {
		return errors.New("unequal transfer halves")
	}
	s.frames = append(s.frames, append([]byte(nil), w...))

	op := w[0]
	if s.busFailures[op] > 0 {
		s.busFailures[op]--
		return errBus
	}
	for i := range r {
		r[i] = 0
	}
	if s.statusFailures[op] > 0 {
		s.statusFailures[op]--
		r[frameStatusIndex] = 0xA0
		return nil
	}

	n := int(binary.BigEndian.Uint16(w[2:]))
	if w[1]&ctrlRead != 0 {
		s.respond(op, r[frameDataOffset:frameDataOffset+n])
		trailer := r[frameDataOffset+n:]
		crc := TransportCRC(r[frameDataOffset : frameDataOffset+n])
		if s.crcFailures[op] > 0 {
			s.crcFailures[op]--
			crc ^= 0xFFFF
		}
		trailer[0] = byte(crc)
		trailer[1] = byte(crc >> 8)
		return nil
	}

	var data []byte
	if n > 0 {
		data = w[frameDataOffset : frameDataOffset+n]
	}
	s.execute(op, data)
	return nil
}

func get24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func (s *simController) execute(op byte, data []byte) {
	switch op {
	case commandStart1:
		s.shaken = len(data) == 1 && data[0] == commandStart2
	case commandSetAddress:
		s.address = get24(data)
	case commandWritePacket:
		for i, b := range data {
			s.memory[s.address+uint32(i)] = b
		}
	case commandECC:
		s.eccAddress = get24(data[0:])
		s.eccLength = get24(data[3:])
		s.eccPolls = 0
	case commandStartApp:
		s.started = true
	}
}

func (s *simController) respond(op byte, out []byte) {
	switch op {
	case commandReadID:
		binary.BigEndian.PutUint16(out, s.chipID)
	case commandECCFinish:
		s.eccPolls++
		if s.eccPolls > s.eccBusy {
			out[0] = eccReady
		}
	case commandECCRead:
		binary.BigEndian.PutUint16(out, RegionECC(s.read(s.eccAddress, int(s.eccLength)))+s.eccSkew)
	case commandTouchReport:
		copy(out, s.report)
	}
}

func (s *simController) read(address uint32, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = s.memory[address+uint32(i)]
	}
	return data
}

// commands returns the opcodes of the recorded frames.
func (s *simController) commands() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]byte, len(s.frames))
	for i, f := range s.frames {
		ops[i] = f[0]
	}
	return ops
}

// addresses returns the targets of all SetAddress frames.
func (s *simController) addresses() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var addrs []uint32
	for _, f := range s.frames {
		if f[0] == commandSetAddress {
			addrs = append(addrs, get24(f[frameDataOffset:]))
		}
	}
	return addrs
}

func (s *simController) count(op byte) int {
	n := 0
	for _, o := range s.commands() {
		if o == op {
			n++
		}
	}
	return n
}

// testProfile is DefaultProfile without delays.
func testProfile() Profile {
	p := DefaultProfile()
	p.EccSettle = 0
	p.EccPollInterval = 0
	p.StartSettle = 0
	return p
}
