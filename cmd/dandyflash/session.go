package main

import (
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/address"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/flash"
	"github.com/thesues/dandy-go/flash/is25"
	"github.com/thesues/dandy-go/flash/sim"
	"github.com/thesues/dandy-go/flash/sst26"
	"github.com/thesues/dandy-go/internalerror"
	"github.com/thesues/dandy-go/mapper"
	"github.com/thesues/dandy-go/metrics"
	"github.com/thesues/dandy-go/transport/periph"
	"github.com/thesues/dandy-go/transport/serprog"
	"periph.io/x/conn/v3/physic"
)

//options collects the global flags
type options struct {
	transport string
	chip      string
	port      string
	baud      int
	spi       string
	cs        string
	hz        uint64
	image     string
	base      uint64
	maxPolls  int
}

//chipInfo is implemented by the SPI NOR drivers
type chipInfo interface {
	DeviceType() string
	ID() flash.JedecID
}

//session is one opened device mapped at base
type session struct {
	dev     blockdev.BlockDevice
	raw     blockdev.BlockDevice
	mapper  *mapper.Mapper
	base    uint64
	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newDriver(chip string, t flash.Transport, config flash.Config) (blockdev.BlockDevice, error) {
	switch chip {
	case "sst26":
		return sst26.New(t, config), nil
	case "is25":
		return is25.New(t, config), nil
	}
	return nil, errors.Wrapf(internalerror.InvalidInput, "unknown chip %q", chip)
}

func simProfile(chip string) (sim.Profile, error) {
	switch chip {
	case "sst26":
		return sim.SST26VF064(), nil
	case "is25":
		return sim.IS25LP128A(), nil
	}
	return sim.Profile{}, errors.Wrapf(internalerror.InvalidInput, "unknown chip %q", chip)
}

func openSession(opt options) (*session, error) {
	s := &session{mapper: mapper.New(), base: opt.base}
	opened := false
	defer func() {
		if !opened {
			s.closeAll()
		}
	}()

	var err error
	config := flash.Config{MaxPolls: opt.maxPolls}
	var raw blockdev.BlockDevice
	switch opt.transport {
	case "sim":
		var profile sim.Profile
		if profile, err = simProfile(opt.chip); err != nil {
			return nil, err
		}
		if raw, err = newDriver(opt.chip, sim.New(profile), config); err != nil {
			return nil, err
		}
	case "serprog":
		var p *serprog.Programmer
		if p, err = serprog.Open(opt.port, opt.baud); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, p)
		if raw, err = newDriver(opt.chip, p, config); err != nil {
			return nil, err
		}
	case "spidev":
		var t *periph.Transport
		if t, err = periph.Open(opt.spi, opt.cs, physic.Frequency(opt.hz)*physic.Hertz); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, t)
		if raw, err = newDriver(opt.chip, t, config); err != nil {
			return nil, err
		}
	case "image":
		var f *blockdev.FileDevice
		if f, err = blockdev.OpenImage(opt.image); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, f)
		raw = f
	default:
		return nil, errors.Wrapf(internalerror.InvalidInput, "unknown transport %q", opt.transport)
	}

	s.raw = raw
	s.dev = metrics.Instrument(raw)
	if err = s.dev.Init(); err != nil {
		return nil, errors.Wrapf(err, "failed to init %s", raw.Type())
	}
	//deinit runs before the transport is closed
	s.closers = append([]io.Closer{closerFunc(s.dev.Deinit)}, s.closers...)

	if s.base > address.MAX_ADDRESS || address.MAX_ADDRESS-s.base < s.dev.Size()-1 {
		return nil, errors.Wrapf(internalerror.InvalidInput, "base %#x leaves no room for %s", s.base, humanize.IBytes(s.dev.Size()))
	}
	s.mapper.AddMap(s.dev, s.base, 0, s.dev.Size())
	logrus.Debugf("mapped %s (%s) at %#x", raw.Type(), humanize.IBytes(s.dev.Size()), s.base)
	opened = true
	return s, nil
}

func (s *session) closeAll() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func (s *session) Close() error {
	return s.closeAll()
}

//locate resolves a virtual range that must fit one mapped device
func (s *session) locate(addr uint64, size uint64) (mapper.Location, error) {
	return s.mapper.Translate(addr, size)
}

type deviceInfo struct {
	Type        string `json:"type"`
	Part        string `json:"part,omitempty"`
	JedecID     string `json:"jedec_id,omitempty"`
	Size        uint64 `json:"size"`
	ReadSize    uint64 `json:"read_size"`
	ProgramSize uint64 `json:"program_size"`
	EraseSize   uint64 `json:"erase_size"`
	Base        uint64 `json:"base"`
}

func (s *session) info() deviceInfo {
	info := deviceInfo{
		Type:        s.raw.Type(),
		Size:        s.dev.Size(),
		ReadSize:    s.dev.ReadSize(),
		ProgramSize: s.dev.ProgramSize(),
		EraseSize:   s.dev.EraseSize(),
		Base:        s.base,
	}
	if c, ok := s.raw.(chipInfo); ok {
		info.Part = c.DeviceType()
		info.JedecID = c.ID().String()
	}
	return info
}

type regionInfo struct {
	Device   string `json:"device"`
	Virtual  uint64 `json:"virtual"`
	Physical uint64 `json:"physical"`
	Size     uint64 `json:"size"`
}

func (s *session) regions() []regionInfo {
	var out []regionInfo
	for _, r := range s.mapper.Regions() {
		out = append(out, regionInfo{
			Device:   r.Device.Type(),
			Virtual:  r.Virtual.Begin.AsU64(),
			Physical: r.Physical,
			Size:     r.Virtual.Size,
		})
	}
	return out
}

//parseNumber accepts 0x prefixed, decimal and humanized sizes like 64KiB
func parseNumber(s string) (uint64, error) {
	if s == "" {
		return 0, errors.Wrap(internalerror.InvalidInput, "empty number")
	}
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(internalerror.InvalidInput, "bad number %q", s)
	}
	return n, nil
}
