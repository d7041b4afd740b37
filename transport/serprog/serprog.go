package serprog

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/internalerror"
	"go.bug.st/serial"
)

//flashrom serial programmer protocol
const (
	ACK = 0x06
	NAK = 0x15

	S_CMD_Q_IFACE     = 0x01
	S_CMD_Q_WRNMAXLEN = 0x08
	S_CMD_SYNCNOP     = 0x10
	S_CMD_Q_RDNMAXLEN = 0x11
	S_CMD_S_BUSTYPE   = 0x12
	S_CMD_O_SPIOP     = 0x13

	BUS_SPI = 0x08

	//24 bit length fields
	MAX_LENGTH = 1<<24 - 1

	DefaultBaudRate = 115200
	DefaultTimeout  = 2 * time.Second
)

//Programmer is a flash.Transport over a serprog bridge. Each chip select
//cycle becomes one SPIOP: writes are held until the first read or the
//deselect, so a read can only be the last phase of a cycle.
type Programmer struct {
	rw       io.ReadWriter
	closer   io.Closer
	maxWrite int
	maxRead  int
	selected bool
	pending  []byte
	done     bool
}

//Open opens a serial port and runs the serprog handshake on it
func Open(portName string, baudRate int) (*Programmer, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", portName)
	}
	if err = port.SetReadTimeout(DefaultTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}
	p, err := New(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	p.closer = port
	logrus.Infof("serprog: opened %s at %d baud", portName, baudRate)
	return p, nil
}

//New runs the handshake over an already open link
func New(rw io.ReadWriter) (*Programmer, error) {
	p := &Programmer{rw: rw, maxWrite: MAX_LENGTH, maxRead: MAX_LENGTH}
	if err := p.sync(); err != nil {
		return nil, err
	}
	if err := p.checkInterface(); err != nil {
		return nil, err
	}
	var err error
	if p.maxWrite, err = p.queryMaxLength(S_CMD_Q_WRNMAXLEN); err != nil {
		return nil, err
	}
	if p.maxRead, err = p.queryMaxLength(S_CMD_Q_RDNMAXLEN); err != nil {
		return nil, err
	}
	if err = p.setBus(BUS_SPI); err != nil {
		return nil, err
	}
	logrus.Debugf("serprog: max write %d, max read %d", p.maxWrite, p.maxRead)
	return p, nil
}

//MaxTxSize bounds one chip select cycle so both the write and the read
//buffer of the bridge fit
func (p *Programmer) MaxTxSize() int {
	if p.maxWrite < p.maxRead {
		return p.maxWrite
	}
	return p.maxRead
}

func (p *Programmer) Close() error {
	if p.closer == nil {
		return nil
	}
	logrus.Info("serprog: closed")
	return p.closer.Close()
}

//readFull treats a read returning nothing as a timeout, which is what the
//serial port does once its read timeout expires
func (p *Programmer) readFull(buf []byte) error {
	for n := 0; n < len(buf); {
		m, err := p.rw.Read(buf[n:])
		if err != nil {
			return errors.Wrap(internalerror.DeviceError, err.Error())
		}
		if m == 0 {
			return errors.Wrap(internalerror.DeviceTimeout, "serprog: no answer")
		}
		n += m
	}
	return nil
}

func (p *Programmer) write(buf []byte) error {
	if _, err := p.rw.Write(buf); err != nil {
		return errors.Wrap(internalerror.DeviceError, err.Error())
	}
	return nil
}

func (p *Programmer) expectAck() error {
	var b [1]byte
	if err := p.readFull(b[:]); err != nil {
		return err
	}
	switch b[0] {
	case ACK:
		return nil
	case NAK:
		return errors.Wrap(internalerror.DeviceError, "serprog: NAK")
	}
	return errors.Wrapf(internalerror.DeviceError, "serprog: unexpected byte %#02x", b[0])
}

func (p *Programmer) sync() error {
	if err := p.write([]byte{S_CMD_SYNCNOP}); err != nil {
		return err
	}
	var b [2]byte
	if err := p.readFull(b[:]); err != nil {
		return errors.Wrap(err, "serprog: sync")
	}
	if b[0] != NAK || b[1] != ACK {
		return errors.Wrapf(internalerror.DeviceError, "serprog: bad sync answer % x", b[:])
	}
	return nil
}

func (p *Programmer) checkInterface() error {
	if err := p.write([]byte{S_CMD_Q_IFACE}); err != nil {
		return err
	}
	if err := p.expectAck(); err != nil {
		return errors.Wrap(err, "serprog: query interface")
	}
	var v [2]byte
	if err := p.readFull(v[:]); err != nil {
		return err
	}
	if version := uint16(v[0]) | uint16(v[1])<<8; version != 1 {
		return errors.Wrapf(internalerror.NotSupported, "serprog: interface version %d", version)
	}
	return nil
}

//queryMaxLength asks for a buffer limit. A bridge without the command
//answers NAK and 0 stands for the full 24 bit range.
func (p *Programmer) queryMaxLength(cmd byte) (int, error) {
	if err := p.write([]byte{cmd}); err != nil {
		return 0, err
	}
	var b [1]byte
	if err := p.readFull(b[:]); err != nil {
		return 0, err
	}
	switch b[0] {
	case NAK:
		return MAX_LENGTH, nil
	case ACK:
	default:
		return 0, errors.Wrapf(internalerror.DeviceError, "serprog: unexpected byte %#02x", b[0])
	}
	var v [3]byte
	if err := p.readFull(v[:]); err != nil {
		return 0, err
	}
	n := int(v[0]) | int(v[1])<<8 | int(v[2])<<16
	if n == 0 {
		n = MAX_LENGTH
	}
	return n, nil
}

func (p *Programmer) setBus(bus byte) error {
	if err := p.write([]byte{S_CMD_S_BUSTYPE, bus}); err != nil {
		return err
	}
	return errors.Wrap(p.expectAck(), "serprog: set bus type")
}

func putUINT24LE(buf []byte, n int) {
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
	buf[2] = byte(n >> 16)
}

//spiOp clocks out tx and then reads len(rx) bytes under one chip select
func (p *Programmer) spiOp(tx []byte, rx []byte) error {
	if len(tx) > p.maxWrite || len(rx) > p.maxRead {
		return errors.Wrapf(internalerror.InvalidInput, "serprog: spiop of %d/%d bytes", len(tx), len(rx))
	}
	frame := make([]byte, 7, 7+len(tx))
	frame[0] = S_CMD_O_SPIOP
	putUINT24LE(frame[1:4], len(tx))
	putUINT24LE(frame[4:7], len(rx))
	frame = append(frame, tx...)
	if err := p.write(frame); err != nil {
		return err
	}
	if err := p.expectAck(); err != nil {
		return errors.Wrap(err, "serprog: spiop")
	}
	if len(rx) > 0 {
		return p.readFull(rx)
	}
	return nil
}

func (p *Programmer) Select() error {
	if p.selected {
		return errors.Wrap(internalerror.DeviceError, "serprog: already selected")
	}
	p.selected = true
	p.done = false
	p.pending = p.pending[:0]
	return nil
}

func (p *Programmer) Exchange(tx []byte, rx []byte) error {
	if !p.selected {
		return errors.Wrap(internalerror.DeviceError, "serprog: exchange without select")
	}
	if p.done {
		return errors.Wrap(internalerror.NotSupported, "serprog: transfer after a read in one cycle")
	}
	p.pending = append(p.pending, tx...)
	if len(rx) == 0 {
		return nil
	}
	p.done = true
	err := p.spiOp(p.pending, rx)
	p.pending = p.pending[:0]
	return err
}

func (p *Programmer) Deselect() error {
	if !p.selected {
		return errors.Wrap(internalerror.DeviceError, "serprog: deselect without select")
	}
	p.selected = false
	if p.done || len(p.pending) == 0 {
		return nil
	}
	err := p.spiOp(p.pending, nil)
	p.pending = p.pending[:0]
	return err
}
