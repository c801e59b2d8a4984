package ftsboot

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func sequence(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}
	return data
}

func TestPacketize(t *testing.T) {
	tests := []struct {
		name   string
		length int
		size   int
		count  int
		last   int
	}{
		{name: "empty", length: 0, size: 4, count: 0},
		{name: "shorter than a packet", length: 3, size: 4, count: 1, last: 3},
		{name: "exactly one packet", length: 4, size: 4, count: 1, last: 4},
		{name: "evenly divisible", length: 32, size: 4, count: 8, last: 4},
		{name: "remainder", length: 33, size: 4, count: 9, last: 1},
		{name: "default size", length: 10000, size: 4092, count: 3, last: 10000 - 2*4092},
	}

	const base = 0xD00000
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := sequence(tt.length)
			packets := Packetize(base, data, tt.size)
			if len(packets) != tt.count {
				t.Fatalf("got %d packets, want %d", len(packets), tt.count)
			}
			var joined []byte
			for i, p := range packets {
				if want := uint32(base + i*tt.size); p.Address != want {
					t.Errorf("packet %d address = %X, want %X", i, p.Address, want)
				}
				if i < len(packets)-1 && len(p.Data) != tt.size {
					t.Errorf("packet %d length = %d, want %d", i, len(p.Data), tt.size)
				}
				joined = append(joined, p.Data...)
			}
			if tt.count > 0 && len(packets[tt.count-1].Data) != tt.last {
				t.Errorf("last packet length = %d, want %d", len(packets[tt.count-1].Data), tt.last)
			}
			if !bytes.Equal(joined, data) {
				t.Error("packets do not cover the data")
			}
		})
	}
}

func TestEccSpans(t *testing.T) {
	spans := EccSpans(0x100, 0x1FFFE+10, 0xFFFE)
	expected := []EccSpan{
		{Address: 0x100, Length: 0xFFFE},
		{Address: 0x100 + 0xFFFE, Length: 0xFFFE},
		{Address: 0x100 + 0x1FFFC, Length: 12},
	}
	if len(spans) != len(expected) {
		t.Fatalf("spans = %+v, want %+v", spans, expected)
	}
	for i := range spans {
		if spans[i] != expected[i] {
			t.Errorf("span %d = %+v, want %+v", i, spans[i], expected[i])
		}
	}
	if got := EccSpans(0, 0, 0xFFFE); len(got) != 0 {
		t.Errorf("spans of empty region = %+v", got)
	}
}

func TestProgramWritesInAddressOrder(t *testing.T) {
	boot := &mockBootloader{ecc: RegionECC(sequence(32))}
	profile := testProfile()
	profile.PacketSize = 4
	prog := NewProgrammer(boot, profile)

	region := MemoryRegion{Name: RegionPram, Address: 0x1000, Length: 32}
	if err := prog.Program(region, sequence(40)); err != nil {
		t.Fatalf("Program() error = %v", err)
	}

	if len(boot.addresses) != 8 {
		t.Fatalf("got %d packets, want 8", len(boot.addresses))
	}
	for i, addr := range boot.addresses {
		if want := uint32(0x1000 + 4*i); addr != want {
			t.Errorf("packet %d address = %X, want %X", i, addr, want)
		}
		if len(boot.packets[i]) != 4 {
			t.Errorf("packet %d length = %d, want 4", i, len(boot.packets[i]))
		}
	}
	// Every packet is addressed before it is written, and verified last.
	for i := 0; i < 16; i += 2 {
		if boot.calls[i] != "setaddr" || boot.calls[i+1] != "write" {
			t.Fatalf("calls = %v", boot.calls)
		}
	}
	if boot.calls[16] != "ecc" {
		t.Errorf("call after packets = %q, want ecc", boot.calls[16])
	}
	if len(boot.spans) != 1 || boot.spans[0] != (EccSpan{Address: 0x1000, Length: 32}) {
		t.Errorf("ecc spans = %+v", boot.spans)
	}
}

func TestProgramAborts(t *testing.T) {
	errTransfer := errors.Wrap(ErrTransport, "exchange")
	tests := []struct {
		name    string
		boot    *mockBootloader
		packets int
		address uint32
		kind    error
	}{
		{
			name:    "set address",
			boot:    &mockBootloader{setAddrErr: errTransfer},
			packets: 0,
			address: 0x1000,
			kind:    ErrTransport,
		},
		{
			name:    "write",
			boot:    &mockBootloader{writeErr: errTransfer},
			packets: 1,
			address: 0x1000,
			kind:    ErrTransport,
		},
		{
			name:    "ecc",
			boot:    &mockBootloader{ecc: 0xFFFF},
			packets: 4,
			address: 0x1000,
			kind:    ErrIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := testProfile()
			profile.PacketSize = 4
			prog := NewProgrammer(tt.boot, profile)

			err := prog.Program(MemoryRegion{Name: RegionDram, Address: 0x1000, Length: 16}, sequence(16))
			if !errors.Is(err, tt.kind) {
				t.Fatalf("Program() error = %v, want %v", err, tt.kind)
			}
			var progErr *ProgramError
			if !errors.As(err, &progErr) || progErr.Address != tt.address || progErr.Region != RegionDram {
				t.Errorf("error %v does not locate the failure", err)
			}
			if len(tt.boot.packets) != tt.packets {
				t.Errorf("wrote %d packets, want %d", len(tt.boot.packets), tt.packets)
			}
		})
	}
}

func TestProgramStopsAtFirstBadSpan(t *testing.T) {
	boot := &mockBootloader{ecc: 0xFFFF}
	profile := testProfile()
	profile.EccPacketSize = 8
	prog := NewProgrammer(boot, profile)

	err := prog.Program(MemoryRegion{Name: RegionPram, Length: 32}, sequence(32))
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Program() error = %v", err)
	}
	if len(boot.spans) != 1 {
		t.Errorf("verified %d spans, want 1", len(boot.spans))
	}
}

func TestProgramShortSource(t *testing.T) {
	boot := &mockBootloader{}
	prog := NewProgrammer(boot, testProfile())
	err := prog.Program(MemoryRegion{Name: RegionPram, Length: 32}, sequence(16))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("Program() error = %v, want ErrFormat", err)
	}
	if len(boot.calls) != 0 {
		t.Errorf("bootloader was used: %v", boot.calls)
	}
}

func TestProgramProgress(t *testing.T) {
	profile := testProfile()
	profile.PacketSize = 10
	prog := NewProgrammer(&mockBootloader{ecc: RegionECC(sequence(25))}, profile)

	var reports []int
	prog.SetProgressFunc(func(region string, written, total int) {
		if region != RegionPram || total != 25 {
			t.Errorf("progress(%q, %d, %d)", region, written, total)
		}
		reports = append(reports, written)
	})
	if err := prog.Program(MemoryRegion{Name: RegionPram, Length: 25}, sequence(25)); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 3 || reports[0] != 10 || reports[1] != 20 || reports[2] != 25 {
		t.Errorf("progress reports = %v", reports)
	}
}

func TestProgramOverChannel(t *testing.T) {
	sim := newSimController()
	profile := testProfile()
	profile.PacketSize = 100
	profile.EccPacketSize = 64
	prog := NewProgrammer(NewBootloader(NewChannel(sim, 0, 0)), profile)

	src := sequence(250)
	if err := prog.Program(MemoryRegion{Name: RegionDram, Address: 0xD00000, Length: 250}, src); err != nil {
		t.Fatalf("Program() error = %v", err)
	}
	if !bytes.Equal(sim.read(0xD00000, 250), src) {
		t.Error("controller memory does not match source")
	}
	if got := sim.count(commandECC); got != 4 {
		t.Errorf("ecc requests = %d, want 4", got)
	}
}

func TestProgramFitsPacketsToBusLimit(t *testing.T) {
	sim := newSimController()
	// spidev's default bufsiz.
	ch := NewChannel(limitedBus{Bus: sim, limit: 4096}, 0, 0)
	prog := NewProgrammer(NewBootloader(ch), testProfile())

	src := sequence(10000)
	if err := prog.Program(MemoryRegion{Name: RegionDram, Address: 0xD00000, Length: len(src)}, src); err != nil {
		t.Fatalf("Program() error = %v", err)
	}
	if !bytes.Equal(sim.read(0xD00000, len(src)), src) {
		t.Error("controller memory does not match source")
	}
	var sizes []int
	for _, f := range sim.frames {
		if f[0] == commandWritePacket {
			sizes = append(sizes, len(f)-frameDataOffset)
		}
	}
	expected := []int{4089, 4089, 1822}
	if len(sizes) != len(expected) {
		t.Fatalf("packet sizes = %v, want %v", sizes, expected)
	}
	for i := range sizes {
		if sizes[i] != expected[i] {
			t.Errorf("packet %d size = %d, want %d", i, sizes[i], expected[i])
		}
	}
}

func TestProgramBusTooSmall(t *testing.T) {
	sim := newSimController()
	prog := NewProgrammer(NewBootloader(NewChannel(limitedBus{Bus: sim, limit: frameDataOffset}, 0, 0)), testProfile())
	err := prog.Program(MemoryRegion{Name: RegionPram, Length: 16}, sequence(16))
	if !errors.Is(err, ErrResource) {
		t.Errorf("Program() error = %v, want ErrResource", err)
	}
	if len(sim.frames) != 0 {
		t.Errorf("bus was used %d times", len(sim.frames))
	}
}

func TestProgramRejectsInvalidProfile(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
	}{
		{"zero profile", Profile{}},
		{"zero packet size", func() Profile { p := testProfile(); p.PacketSize = 0; return p }()},
		{"zero ecc size", func() Profile { p := testProfile(); p.EccPacketSize = 0; return p }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			boot := &mockBootloader{}
			prog := NewProgrammer(boot, tt.profile)
			region := MemoryRegion{Name: RegionPram, Length: 32}
			if err := prog.Program(region, sequence(32)); err == nil {
				t.Error("Program() succeeded")
			}
			if err := prog.Verify(region, sequence(32)); err == nil {
				t.Error("Verify() succeeded")
			}
			if len(boot.calls) != 0 {
				t.Errorf("bootloader was used: %v", boot.calls)
			}
		})
	}
}
