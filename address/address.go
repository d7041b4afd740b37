package address

//protect the address

const (
	MAX_ADDRESS = (1 << 32) - 1
)

//Address is a byte address on a block device, either virtual or physical.
//SPI NOR parts handled here use at most 4-byte addressing.
type Address uint64

func AddressFromU64(val uint64) Address {
	if val > MAX_ADDRESS {
		panic("failed to create Address")
	}
	return Address(val)
}

func (a Address) AsU64() uint64 {
	return uint64(a)
}

func (left Address) Add(right uint64) Address {
	return AddressFromU64(uint64(left) + right)
}

func (left Address) Sub(right Address) uint64 {
	if uint64(right) > uint64(left) {
		panic("Address: sub is wrong")
	}
	return uint64(left) - uint64(right)
}

//Within reports begin <= x < end
func Within(x, begin, end Address) bool {
	return begin <= x && x < end
}

//Range is the half-open interval [Begin, Begin+Size)
type Range struct {
	Begin Address
	Size  uint64
}

func NewRange(begin uint64, size uint64) Range {
	return Range{Begin: AddressFromU64(begin), Size: size}
}

func (r Range) End() Address {
	return Address(uint64(r.Begin) + r.Size)
}

func (r Range) Contains(x Address) bool {
	return Within(x, r.Begin, r.End())
}

//Overlaps reports whether r and other share at least one address.
//Adjacent ranges do not overlap.
func (r Range) Overlaps(other Range) bool {
	if r.Size == 0 || other.Size == 0 {
		return false
	}
	return r.Begin < other.End() && other.Begin < r.End()
}
