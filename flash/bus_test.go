package flash

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/thesues/dandy-go/internalerror"
)

//scriptedTransport records what is clocked out and answers reads with status
type scriptedTransport struct {
	frames   [][]byte
	current  []byte
	statuses []byte
	selected bool
	failTx   bool
}

func (s *scriptedTransport) Select() error {
	s.selected = true
	s.current = nil
	return nil
}

func (s *scriptedTransport) Deselect() error {
	s.selected = false
	s.frames = append(s.frames, s.current)
	return nil
}

func (s *scriptedTransport) Exchange(tx []byte, rx []byte) error {
	if !s.selected {
		return errors.New("not selected")
	}
	if s.failTx && len(tx) > 0 && len(s.frames) > 0 {
		return errors.Wrap(internalerror.DeviceError, "scripted")
	}
	s.current = append(s.current, tx...)
	for i := range rx {
		if len(s.statuses) > 0 {
			rx[i] = s.statuses[0]
			s.statuses = s.statuses[1:]
		} else {
			rx[i] = 0
		}
	}
	return nil
}

var testOps = Opcodes{
	Read:         0x03,
	PageProgram:  0x02,
	WriteEnable:  0x06,
	WriteDisable: 0x04,
	ReadStatus:   0x05,
	ReadID:       0x9F,
	ChipErase:    0xC7,
}

func TestDoCommandFraming(t *testing.T) {
	tr := &scriptedTransport{}
	bus := NewBus(tr, 3, testOps, Config{})
	assert.Nil(t, bus.DoCommand(0x20, 0x123456, nil, nil))
	assert.Equal(t, []byte{0x20, 0x12, 0x34, 0x56}, tr.frames[0])
	assert.Panics(t, func() { bus.DoCommand(0x20, 0x1000000, nil, nil) })

	tr = &scriptedTransport{}
	bus = NewBus(tr, 4, testOps, Config{})
	assert.Nil(t, bus.DoCommand(0x21, 0x12345678, []byte{0xAA}, nil))
	assert.Equal(t, []byte{0x21, 0x12, 0x34, 0x56, 0x78, 0xAA}, tr.frames[0])

	assert.Panics(t, func() { NewBus(tr, 2, testOps, Config{}) })
}

func TestWriteEnable(t *testing.T) {
	tr := &scriptedTransport{statuses: []byte{STATUS_WEL}}
	bus := NewBus(tr, 3, testOps, Config{})
	assert.Nil(t, bus.WriteEnable())
	assert.Equal(t, [][]byte{{0x06}, {0x05}}, tr.frames)

	tr = &scriptedTransport{statuses: []byte{0x00}}
	bus = NewBus(tr, 3, testOps, Config{})
	assert.True(t, internalerror.Is(bus.WriteEnable(), internalerror.AccessDenied))
}

func TestWaitForCommandCompletion(t *testing.T) {
	tr := &scriptedTransport{statuses: []byte{STATUS_BUSY, STATUS_BUSY, STATUS_BUSY, 0}}
	bus := NewBus(tr, 3, testOps, Config{MaxPolls: 4})
	assert.Nil(t, bus.WaitForCommandCompletion())
	assert.Equal(t, 4, len(tr.frames))

	tr = &scriptedTransport{statuses: []byte{STATUS_BUSY, STATUS_BUSY, STATUS_BUSY, 0}}
	bus = NewBus(tr, 3, testOps, Config{MaxPolls: 3})
	assert.True(t, internalerror.Is(bus.WaitForCommandCompletion(), internalerror.DeviceTimeout))

	//negative polls forever
	busy := make([]byte, 1000)
	for i := range busy {
		busy[i] = STATUS_BUSY
	}
	tr = &scriptedTransport{statuses: append(busy, 0)}
	bus = NewBus(tr, 3, testOps, Config{MaxPolls: -1})
	assert.Nil(t, bus.WaitForCommandCompletion())
	assert.Equal(t, 1001, len(tr.frames))
}

func TestProgramSplitsPages(t *testing.T) {
	//WEL for every write enable, ready for every poll
	statuses := []byte{}
	for i := 0; i < 3; i++ {
		statuses = append(statuses, STATUS_WEL, 0)
	}
	tr := &scriptedTransport{statuses: statuses}
	bus := NewBus(tr, 3, testOps, Config{PageSize: 16})

	data := make([]byte, 20)
	assert.Nil(t, bus.Program(data, 10))
	//a chunk stops at each 16 byte page boundary
	var sizes []int
	var addrs []byte
	for _, f := range tr.frames {
		if f[0] == 0x02 {
			sizes = append(sizes, len(f)-4)
			addrs = append(addrs, f[3])
		}
	}
	assert.Equal(t, []int{6, 14}, sizes)
	assert.Equal(t, []byte{10, 16}, addrs)
}

//limitedTransport carries at most limit bytes per chip select cycle
type limitedTransport struct {
	scriptedTransport
	limit int
	rxs   []int
}

func (l *limitedTransport) MaxTxSize() int {
	return l.limit
}

func (l *limitedTransport) Exchange(tx []byte, rx []byte) error {
	if len(l.current)+len(tx)+len(rx) > l.limit {
		return errors.Wrap(internalerror.InvalidInput, "transfer too long")
	}
	if len(rx) > 0 {
		l.rxs = append(l.rxs, len(rx))
	}
	return l.scriptedTransport.Exchange(tx, rx)
}

func TestTransportLimit(t *testing.T) {
	tr := &limitedTransport{limit: 8}
	bus := NewBus(tr, 3, testOps, Config{})
	assert.Nil(t, bus.Read(make([]byte, 10), 0x10))
	assert.Equal(t, []int{4, 4, 2}, tr.rxs)
	assert.Equal(t, [][]byte{
		{0x03, 0x00, 0x00, 0x10},
		{0x03, 0x00, 0x00, 0x14},
		{0x03, 0x00, 0x00, 0x18},
	}, tr.frames)

	statuses := []byte{}
	for i := 0; i < 3; i++ {
		statuses = append(statuses, STATUS_WEL, 0)
	}
	tr = &limitedTransport{limit: 8, scriptedTransport: scriptedTransport{statuses: statuses}}
	bus = NewBus(tr, 3, testOps, Config{})
	assert.Nil(t, bus.Program([]byte("0123456789"), 0))
	var programmed []byte
	for _, f := range tr.frames {
		if f[0] == 0x02 {
			assert.True(t, len(f) <= 8)
			programmed = append(programmed, f[4:]...)
		}
	}
	assert.Equal(t, []byte("0123456789"), programmed)

	assert.Panics(t, func() { NewBus(&limitedTransport{limit: 5}, 4, testOps, Config{}) })
}

func TestExchangeFailure(t *testing.T) {
	tr := &scriptedTransport{failTx: true}
	bus := NewBus(tr, 3, testOps, Config{})
	assert.Nil(t, bus.DoCommandNoAddress(0x06, nil, nil))
	err := bus.DoCommand(0x02, 0, []byte{1}, nil)
	assert.True(t, internalerror.Is(err, internalerror.DeviceError))
	//chip select is released anyway
	assert.False(t, tr.selected)
}

func TestJedecID(t *testing.T) {
	tr := &scriptedTransport{statuses: []byte{0xBF, 0x26, 0x43}}
	bus := NewBus(tr, 3, testOps, Config{})
	id, err := bus.ReadID()
	assert.Nil(t, err)
	assert.Equal(t, "BF 26 43", id.String())

	parts := []Part{{ID: JedecID{0xBF, 0x26, 0x43}, Name: "x", Size: 1}}
	p, ok := LookupPart(parts, id)
	assert.True(t, ok)
	assert.Equal(t, "x", p.Name)
	_, ok = LookupPart(parts, JedecID{})
	assert.False(t, ok)
}
