package periph

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/internalerror"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const DefaultFrequency = 10 * physic.MegaHertz

//Conn is the part of spi.Conn used here
type Conn interface {
	Tx(w, r []byte) error
}

//Pin is the part of gpio.PinOut used for chip select
type Pin interface {
	Out(l gpio.Level) error
}

//Transport is a flash.Transport over a Linux spidev port.
//
//With a GPIO chip select every Exchange is its own Tx while the pin is
//held low. Without one the kernel drives chip select per Tx, so writes are
//held until the first read or the deselect and sent as a single Tx.
//
//A Conn that also implements conn.Limits (spidev does, from its bufsiz
//parameter) caps every Tx; the cap is reported through MaxTxSize.
type Transport struct {
	conn     Conn
	cs       Pin
	port     spi.PortCloser
	maxTx    int
	selected bool
	pending  []byte
	done     bool
}

func New(c Conn, cs Pin) *Transport {
	t := &Transport{conn: c, cs: cs}
	if l, ok := c.(conn.Limits); ok {
		t.maxTx = l.MaxTxSize()
	}
	return t
}

//MaxTxSize is the largest chip select cycle, 0 for no cap
func (t *Transport) MaxTxSize() int {
	return t.maxTx
}

//Open connects to spiName (for example "/dev/spidev0.0" or "SPI0.0").
//csName names a GPIO used as chip select, empty to use the port's own.
func Open(spiName string, csName string, hz physic.Frequency) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize periph")
	}
	if hz == 0 {
		hz = DefaultFrequency
	}
	port, err := spireg.Open(spiName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", spiName)
	}

	mode := spi.Mode0
	var cs Pin
	if csName != "" {
		pin := gpioreg.ByName(csName)
		if pin == nil {
			port.Close()
			return nil, errors.Wrapf(internalerror.InvalidInput, "no gpio named %s", csName)
		}
		if err = pin.Out(gpio.High); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "failed to drive %s", csName)
		}
		cs = pin
		mode |= spi.NoCS
	}

	c, err := port.Connect(hz, mode, 8)
	if err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "failed to connect %s", spiName)
	}
	t := New(c, cs)
	t.port = port
	logrus.Infof("periph: opened %s at %s, max transfer %d", spiName, hz, t.maxTx)
	return t, nil
}

func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	logrus.Info("periph: closed")
	return t.port.Close()
}

//tx clocks w then len(r) filler bytes and keeps the tail as r
func (t *Transport) tx(w []byte, r []byte) error {
	if t.maxTx > 0 && len(w)+len(r) > t.maxTx {
		return errors.Wrapf(internalerror.InvalidInput, "periph: transfer of %d bytes, limit is %d", len(w)+len(r), t.maxTx)
	}
	buf := make([]byte, len(w)+len(r))
	copy(buf, w)
	in := make([]byte, len(buf))
	if err := t.conn.Tx(buf, in); err != nil {
		return errors.Wrap(internalerror.DeviceError, err.Error())
	}
	copy(r, in[len(w):])
	return nil
}

func (t *Transport) Select() error {
	if t.selected {
		return errors.Wrap(internalerror.DeviceError, "periph: already selected")
	}
	t.selected = true
	t.done = false
	t.pending = t.pending[:0]
	if t.cs != nil {
		if err := t.cs.Out(gpio.Low); err != nil {
			return errors.Wrap(internalerror.DeviceError, err.Error())
		}
	}
	return nil
}

func (t *Transport) Exchange(tx []byte, rx []byte) error {
	if !t.selected {
		return errors.Wrap(internalerror.DeviceError, "periph: exchange without select")
	}
	if t.cs != nil {
		return t.tx(tx, rx)
	}
	if t.done {
		return errors.Wrap(internalerror.NotSupported, "periph: transfer after a read in one cycle")
	}
	t.pending = append(t.pending, tx...)
	if len(rx) == 0 {
		return nil
	}
	t.done = true
	err := t.tx(t.pending, rx)
	t.pending = t.pending[:0]
	return err
}

func (t *Transport) Deselect() error {
	if !t.selected {
		return errors.Wrap(internalerror.DeviceError, "periph: deselect without select")
	}
	t.selected = false
	var err error
	if t.cs == nil && !t.done && len(t.pending) > 0 {
		err = t.tx(t.pending, nil)
		t.pending = t.pending[:0]
	}
	if t.cs != nil {
		if csErr := t.cs.Out(gpio.High); csErr != nil && err == nil {
			err = errors.Wrap(internalerror.DeviceError, csErr.Error())
		}
	}
	return err
}
