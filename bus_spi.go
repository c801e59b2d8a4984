package ftsboot

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIBus is a Bus on a host SPI port.
type SPIBus struct {
	port spi.PortCloser
	conn spi.Conn
}

// OpenSPI opens the named SPI port, e.g. "/dev/spidev0.0" or "SPI0.0". An
// empty name selects the first port available.
func OpenSPI(name string, freq physic.Frequency, mode spi.Mode) (*SPIBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialise host drivers")
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open spi port %q", name)
	}
	c, err := port.Connect(freq, mode, 8)
	if err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "failed to configure spi port %q", name)
	}
	pkgLog.Debugf("opened %s at %s", c, freq)
	return &SPIBus{port: port, conn: c}, nil
}

// Tx performs one full-duplex exchange.
func (b *SPIBus) Tx(w, r []byte) error {
	return b.conn.Tx(w, r)
}

// MaxTxSize returns the largest exchange the port supports, or 0 if the
// driver reports no limit.
func (b *SPIBus) MaxTxSize() int {
	if l, ok := b.conn.(conn.Limits); ok {
		return l.MaxTxSize()
	}
	return 0
}

// Close releases the port.
func (b *SPIBus) Close() error {
	return b.port.Close()
}
