package mapper

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/address"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/internalerror"
)

//Region binds the virtual range [Virtual.Begin, Virtual.End()) to Device,
//starting at Physical on the device.
type Region struct {
	Device   blockdev.BlockDevice
	Virtual  address.Range
	Physical uint64
}

//Location is the result of a successful lookup
type Location struct {
	Device   blockdev.BlockDevice
	Physical uint64
}

//Mapper holds a small table of non-overlapping regions. Lookups are linear.
type Mapper struct {
	regions []Region
}

func New() *Mapper {
	return &Mapper{}
}

//AddMap panics if size is zero, the virtual range does not fit the address
//space, or it overlaps an existing region. The table is untouched in that case.
func (m *Mapper) AddMap(dev blockdev.BlockDevice, virtualBegin uint64, physicalBegin uint64, size uint64) {
	if dev == nil {
		panic("AddMap: nil device")
	}
	if size == 0 {
		panic("AddMap: empty region")
	}
	if virtualBegin+size < virtualBegin {
		panic(fmt.Sprintf("AddMap: region %#x+%d overflows", virtualBegin, size))
	}
	r := address.NewRange(virtualBegin, size)
	//the last byte has to be addressable too
	r.Begin.Add(size - 1)
	for _, existing := range m.regions {
		if existing.Virtual.Overlaps(r) {
			panic(fmt.Sprintf("AddMap: [%#x, %#x) overlaps [%#x, %#x)",
				virtualBegin, virtualBegin+size,
				existing.Virtual.Begin.AsU64(), existing.Virtual.End().AsU64()))
		}
	}
	m.regions = append(m.regions, Region{Device: dev, Virtual: r, Physical: physicalBegin})
}

//RemoveMap drops the first region mapped to dev
func (m *Mapper) RemoveMap(dev blockdev.BlockDevice) {
	for i := range m.regions {
		if m.regions[i].Device == dev {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return
		}
	}
}

func (m *Mapper) FindDevice(virtualAddress uint64) (Location, bool) {
	for _, r := range m.regions {
		if r.Virtual.Contains(address.Address(virtualAddress)) {
			return Location{
				Device:   r.Device,
				Physical: r.Physical + address.Address(virtualAddress).Sub(r.Virtual.Begin),
			}, true
		}
	}
	return Location{}, false
}

//Translate resolves [virtualAddress, virtualAddress+size), which must lie
//inside a single region.
func (m *Mapper) Translate(virtualAddress uint64, size uint64) (Location, error) {
	loc, ok := m.FindDevice(virtualAddress)
	if !ok {
		return Location{}, errors.Wrapf(internalerror.OutOfRange, "no device at %#x", virtualAddress)
	}
	if size == 0 {
		return loc, nil
	}
	last := virtualAddress + size - 1
	if last < virtualAddress {
		return Location{}, errors.Wrapf(internalerror.OutOfRange, "range %#x+%d overflows", virtualAddress, size)
	}
	end, ok := m.FindDevice(last)
	if !ok || end.Device != loc.Device || end.Physical-loc.Physical != size-1 {
		return Location{}, errors.Wrapf(internalerror.OutOfRange, "range %#x+%d crosses a region", virtualAddress, size)
	}
	return loc, nil
}

func (m *Mapper) Regions() []Region {
	regions := make([]Region, len(m.regions))
	copy(regions, m.regions)
	return regions
}

func (m *Mapper) Len() int {
	return len(m.regions)
}
