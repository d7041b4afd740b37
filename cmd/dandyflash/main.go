package main

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/klauspost/readahead"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/internalerror"
	"github.com/thesues/dandy-go/stream"
	"github.com/urfave/cli"
)

func optionsFrom(c *cli.Context) (opt options, err error) {
	opt = options{
		transport: c.GlobalString("transport"),
		chip:      c.GlobalString("chip"),
		port:      c.GlobalString("port"),
		baud:      c.GlobalInt("baud"),
		spi:       c.GlobalString("spi"),
		cs:        c.GlobalString("cs"),
		image:     c.GlobalString("image"),
		maxPolls:  c.GlobalInt("max-polls"),
	}
	if opt.hz, err = parseNumber(c.GlobalString("hz")); err != nil {
		return
	}
	opt.base, err = parseNumber(c.GlobalString("base"))
	return
}

func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		opt, err := optionsFrom(c)
		if err != nil {
			return err
		}
		s, err := openSession(opt)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(c, s)
	}
}

func numberFlag(c *cli.Context, name string) (uint64, error) {
	n, err := parseNumber(c.String(name))
	return n, errors.Wrapf(err, "--%s", name)
}

func createImage(c *cli.Context) error {
	path := c.GlobalString("image")
	capacity, err := numberFlag(c, "capacity")
	if err != nil {
		return err
	}
	es, err := numberFlag(c, "erase")
	if err != nil {
		return err
	}
	eraseSize, err := block.NewSize(es)
	if err != nil {
		return err
	}
	capacity = eraseSize.CeilAlign(capacity)
	fmt.Printf("Creating image <%s>, capacity is <%s>\n", path, humanize.IBytes(capacity))
	dev, err := blockdev.CreateImage(path, capacity, eraseSize)
	if err != nil {
		return err
	}
	header := dev.Header()
	fmt.Printf("UUID  %v\n", header.UUID)
	return dev.Close()
}

func printInfo(s *session) {
	info := s.info()
	fmt.Println("===device===")
	fmt.Printf("Type         %s\n", info.Type)
	if info.Part != "" {
		fmt.Printf("Part         %s (JEDEC %s)\n", info.Part, info.JedecID)
	}
	fmt.Printf("Size         %d, for short %s\n", info.Size, humanize.IBytes(info.Size))
	fmt.Printf("Read Size    %d\n", info.ReadSize)
	fmt.Printf("Program Size %d\n", info.ProgramSize)
	fmt.Printf("Erase Size   %s\n", humanize.IBytes(info.EraseSize))
	if f, ok := s.raw.(*blockdev.FileDevice); ok {
		header := f.Header()
		fmt.Printf("UUID         %v\n", header.UUID)
		fmt.Printf("Version      %d %d\n", header.MajorVersion, header.MinorVersion)
	}
	fmt.Println("===regions===")
	for _, r := range s.regions() {
		fmt.Printf("%#010x-%#010x -> %s@%#x\n", r.Virtual, r.Virtual+r.Size, r.Device, r.Physical)
	}
}

func infoDevice(c *cli.Context, s *session) error {
	printInfo(s)
	return nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

func readDevice(c *cli.Context, s *session) error {
	addr, err := numberFlag(c, "addr")
	if err != nil {
		return err
	}
	size, err := numberFlag(c, "size")
	if err != nil {
		return err
	}
	if size == 0 {
		return errors.Wrap(internalerror.InvalidInput, "--size is zero")
	}
	loc, err := s.locate(addr, size)
	if err != nil {
		return err
	}

	in := stream.NewInputStream(loc.Device, loc.Physical, size, stream.DefaultCacheSize)
	ra := readahead.NewReader(in)
	defer ra.Close()

	out, err := openOutput(c.String("out"))
	if err != nil {
		return err
	}
	n, err := io.Copy(out, ra)
	if out != os.Stdout {
		out.Close()
		fmt.Printf("read %s from %#x\n", humanize.IBytes(uint64(n)), addr)
	}
	return err
}

func readInput(c *cli.Context) ([]byte, error) {
	path := c.String("in")
	if path == "" {
		return nil, errors.Wrap(internalerror.InvalidInput, "--in is required")
	}
	return ioutil.ReadFile(path)
}

//writeDevice overwrites the range, erasing what it needs to
func writeDevice(c *cli.Context, s *session) error {
	addr, err := numberFlag(c, "addr")
	if err != nil {
		return err
	}
	data, err := readInput(c)
	if err != nil {
		return err
	}
	loc, err := s.locate(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	if err = blockdev.Replace(loc.Device, data, loc.Physical); err != nil {
		return err
	}
	fmt.Printf("wrote %s at %#x\n", humanize.IBytes(uint64(len(data))), addr)
	return nil
}

//programDevice only programs, the range has to be erased already
func programDevice(c *cli.Context, s *session) error {
	addr, err := numberFlag(c, "addr")
	if err != nil {
		return err
	}
	data, err := readInput(c)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	loc, err := s.locate(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	out := stream.NewOutputStream(loc.Device, loc.Physical, uint64(len(data)))
	n, err := io.Copy(out, bytes.NewReader(data))
	if err != nil {
		return err
	}
	fmt.Printf("programmed %s at %#x\n", humanize.IBytes(uint64(n)), addr)
	return nil
}

func eraseDevice(c *cli.Context, s *session) error {
	addr, err := numberFlag(c, "addr")
	if err != nil {
		return err
	}
	size, err := numberFlag(c, "size")
	if err != nil {
		return err
	}
	loc, err := s.locate(addr, size)
	if err != nil {
		return err
	}
	if !blockdev.IsValidErase(loc.Device, loc.Physical, size) {
		return errors.Wrapf(internalerror.InvalidInput, "erase %#x+%d is not aligned to %d",
			addr, size, loc.Device.EraseSize())
	}
	if err = loc.Device.Erase(loc.Physical, size); err != nil {
		return err
	}
	fmt.Printf("erased %s at %#x\n", humanize.IBytes(size), addr)
	return nil
}

//compare returns the number of differing bytes and the first differing offset
func compare(expected []byte, actual []byte) (int, int) {
	diff, first := 0, -1
	for i := range expected {
		if expected[i] != actual[i] {
			if first < 0 {
				first = i
			}
			diff++
		}
	}
	return diff, first
}

func verifyDevice(c *cli.Context, s *session) error {
	addr, err := numberFlag(c, "addr")
	if err != nil {
		return err
	}
	data, err := readInput(c)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	loc, err := s.locate(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	actual := make([]byte, len(data))
	if _, err = io.ReadFull(stream.NewInputStream(loc.Device, loc.Physical, uint64(len(data)), stream.DefaultCacheSize), actual); err != nil {
		return err
	}
	diff, first := compare(data, actual)
	if diff == 0 {
		color.Green("OK: %s at %#x match", humanize.IBytes(uint64(len(data))), addr)
		return nil
	}
	color.Red("MISMATCH: %d bytes differ, first at %#x (expected %#02x, got %#02x)",
		diff, addr+uint64(first), data[first], actual[first])
	return errors.Wrapf(internalerror.DeviceError, "verify failed at %#x", addr+uint64(first))
}

var globalFlags = []cli.Flag{
	cli.StringFlag{Name: "transport", Value: "sim", Usage: "sim, serprog, spidev or image"},
	cli.StringFlag{Name: "chip", Value: "sst26", Usage: "sst26 or is25"},
	cli.StringFlag{Name: "port", Value: "/dev/ttyACM0", Usage: "serial port of the serprog bridge"},
	cli.IntFlag{Name: "baud", Value: 115200},
	cli.StringFlag{Name: "spi", Value: "/dev/spidev0.0"},
	cli.StringFlag{Name: "cs", Usage: "gpio used as chip select, empty for the port's own"},
	cli.StringFlag{Name: "hz", Value: "10000000"},
	cli.StringFlag{Name: "image", Value: "flash.img"},
	cli.StringFlag{Name: "base", Value: "0", Usage: "virtual address the device is mapped at"},
	cli.IntFlag{Name: "max-polls", Usage: "busy polls before giving up, 0 for the default, -1 to wait forever"},
	cli.BoolFlag{Name: "verbose"},
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dandyflash"
	app.Usage = "dandyflash subcommand"
	app.Flags = globalFlags
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("verbose") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:  "Create",
			Usage: "Create --capacity <size> --erase <size>, uses --image",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "capacity", Value: "8MiB"},
				cli.StringFlag{Name: "erase", Value: "4KiB"},
			},
			Action: createImage,
		},
		{
			Name:   "Info",
			Usage:  "Info",
			Action: withSession(infoDevice),
		},
		{
			Name:  "Read",
			Usage: "Read --addr addr --size size --out path",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr"},
				cli.StringFlag{Name: "size"},
				cli.StringFlag{Name: "out", Value: "-"},
			},
			Action: withSession(readDevice),
		},
		{
			Name:  "Write",
			Usage: "Write --addr addr --in path",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr"},
				cli.StringFlag{Name: "in"},
			},
			Action: withSession(writeDevice),
		},
		{
			Name:  "Program",
			Usage: "Program --addr addr --in path",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr"},
				cli.StringFlag{Name: "in"},
			},
			Action: withSession(programDevice),
		},
		{
			Name:  "Erase",
			Usage: "Erase --addr addr --size size",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr"},
				cli.StringFlag{Name: "size"},
			},
			Action: withSession(eraseDevice),
		},
		{
			Name:  "Verify",
			Usage: "Verify --addr addr --in path",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr"},
				cli.StringFlag{Name: "in"},
			},
			Action: withSession(verifyDevice),
		},
		{
			Name:  "Serve",
			Usage: "Serve --listen :8081 --static dir",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "listen", Value: ":8081"},
				cli.StringFlag{Name: "static"},
			},
			Action: withSession(serveDevice),
		},
	}
	return app
}

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		logrus.Errorf("%v (errno %d)", err, internalerror.Errno(err))
		os.Exit(1)
	}
}
