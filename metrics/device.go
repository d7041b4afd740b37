package metrics

import (
	"context"

	"github.com/thesues/dandy-go/blockdev"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

//Device records DeviceMetric for every call on the wrapped device
type Device struct {
	blockdev.BlockDevice
	ctx context.Context
}

func Instrument(dev blockdev.BlockDevice) *Device {
	ctx, err := tag.New(context.Background(), tag.Upsert(DeviceKey, dev.Type()))
	if err != nil {
		ctx = context.Background()
	}
	return &Device{BlockDevice: dev, ctx: ctx}
}

func (d *Device) record(err error, ms ...stats.Measurement) error {
	if err != nil {
		stats.Record(d.ctx, DeviceMetric.Failures.M(1))
		return err
	}
	stats.Record(d.ctx, ms...)
	return nil
}

func (d *Device) Init() error {
	err := d.BlockDevice.Init()
	if err == nil {
		stats.Record(d.ctx, DeviceMetric.Capacity.M(int64(d.BlockDevice.Size())))
	}
	return d.record(err)
}

func (d *Device) Read(dst []byte, addr uint64) error {
	err := d.BlockDevice.Read(dst, addr)
	return d.record(err, DeviceMetric.Reads.M(1), DeviceMetric.ReadBytes.M(int64(len(dst))))
}

func (d *Device) Program(src []byte, addr uint64) error {
	err := d.BlockDevice.Program(src, addr)
	return d.record(err, DeviceMetric.Programs.M(1), DeviceMetric.ProgramBytes.M(int64(len(src))))
}

func (d *Device) Erase(addr uint64, size uint64) error {
	err := d.BlockDevice.Erase(addr, size)
	return d.record(err, DeviceMetric.Erases.M(1), DeviceMetric.EraseBytes.M(int64(size)))
}

//Unwrap returns the instrumented device
func (d *Device) Unwrap() blockdev.BlockDevice {
	return d.BlockDevice
}
