package dac

type Opcode byte

const (
	OpSetOutput Opcode = 0x00
	OpReset     Opcode = 0x10

	flagPowerDown byte = 0x08
)

func (o Opcode) String() string {
	switch o {
	case OpSetOutput:
		return "SetOutput"
	case OpReset:
		return "Reset"
	}
	return "Unknown"
}

// Command is the first byte of every transaction. The opcode and the
// power-down flag occupy different bits and can be combined freely.
type Command struct {
	Op        Opcode
	PowerDown bool
}

func (c Command) Byte() byte {
	b := byte(c.Op)
	if c.PowerDown {
		b |= flagPowerDown
	}
	return b
}

// OptionalByte is a data byte that may be absent.
type OptionalByte struct {
	Value byte
	Valid bool
}

func Byte(v byte) OptionalByte {
	return OptionalByte{Value: v, Valid: true}
}

type Frame struct {
	Command Command
	Data    OptionalByte
}

// Bytes returns the frame as it goes on the wire.
func (f Frame) Bytes() []byte {
	if f.Data.Valid {
		return []byte{f.Command.Byte(), f.Data.Value}
	}
	return []byte{f.Command.Byte()}
}
