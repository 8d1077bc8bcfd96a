// Package dac implements a Golang module to drive a Maxim MAX517 8-bit DAC.
// The device is write-only: every transaction is a command byte optionally
// followed by the output code. Datasheet:
// https://www.analog.com/media/en/technical-documentation/data-sheets/MAX517-MAX519.pdf
package dac

import (
	"encoding/hex"
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

type LogFunc func(format string, params ...interface{})

// DefaultAddress is the address of a MAX517 with AD0 and AD1 tied to GND.
const DefaultAddress i2c.Addr = 0x2C

// Controller drives one DAC on a shared bus. It keeps no state besides the
// address, so it does not lock: callers sharing a bus must serialise.
type Controller struct {
	bus  i2c.Bus
	addr i2c.Addr

	logFunc LogFunc
}

func (c *Controller) log(format string, params ...interface{}) {
	if c.logFunc != nil {
		c.logFunc(" * "+format, params...)
	}
}

func New(bus i2c.Bus, addr i2c.Addr, logFunc LogFunc) *Controller {
	return &Controller{
		bus:     bus,
		addr:    addr,
		logFunc: logFunc,
	}
}

func (c *Controller) Address() i2c.Addr {
	return c.addr
}

func (c *Controller) String() string {
	return fmt.Sprintf("MAX517@0x%02x(%s)", uint16(c.addr), c.bus)
}

func (c *Controller) send(f Frame) bool {
	tx := f.Bytes()

	c.log("Writing 0x%02x (%s): %s", uint16(c.addr), f.Command.Op, hex.EncodeToString(tx))

	return c.bus.Tx(uint16(c.addr), tx, nil) == nil
}

// ResetOutput sets the output to zero. If powerDownAfter is set the device
// enters power-down mode afterwards.
func (c *Controller) ResetOutput(powerDownAfter bool) bool {
	return c.send(Frame{
		Command: Command{Op: OpReset, PowerDown: powerDownAfter},
	})
}

// SetOutput writes a new output code. The full 0-255 range is valid.
func (c *Controller) SetOutput(value uint8, powerDownAfter bool) bool {
	return c.send(Frame{
		Command: Command{Op: OpSetOutput, PowerDown: powerDownAfter},
		Data:    Byte(value),
	})
}

// PowerDown floats the output. The device keeps the last code internally.
func (c *Controller) PowerDown() bool {
	return c.send(Frame{
		Command: Command{Op: OpSetOutput, PowerDown: true},
	})
}

// PowerUp leaves power-down mode and restores the last written code.
func (c *Controller) PowerUp() bool {
	return c.send(Frame{
		Command: Command{Op: OpSetOutput},
	})
}
