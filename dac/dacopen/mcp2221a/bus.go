package mcp2221a

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Bus exposes a Device as a periph.io I²C bus.
type Bus struct {
	mutex sync.Mutex
	dev   *Device
}

var _ i2c.BusCloser = &Bus{}

func NewBus(dev *Device) *Bus {
	return &Bus{dev: dev}
}

func (b *Bus) String() string {
	return "MCP2221A(" + b.dev.Serial + ")"
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if len(r) != 0 {
		return errors.New("mcp2221a: reads are not supported")
	}
	if addr > 0x7F {
		return errors.New("mcp2221a: 10-bit addresses are not supported")
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.dev.Write(uint8(addr), w)
}

func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.dev.SetSpeed(uint32(f / physic.Hertz))
}

func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.dev.Close()
}
