package flash

//Transport is a chip-select gated SPI link to one NOR flash chip.
//
//Exchange clocks out tx, then clocks in len(rx) bytes. Either may be empty.
//A command is one Select, one or more Exchange calls and one Deselect.
type Transport interface {
	Select() error
	Deselect() error
	Exchange(tx []byte, rx []byte) error
}

//Limits is implemented by transports that cap the bytes one chip select
//cycle can move, opcode and address included. Zero means no cap.
type Limits interface {
	MaxTxSize() int
}
