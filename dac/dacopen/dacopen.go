package dacopen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BertoldVdb/max517/dac"
	"github.com/BertoldVdb/max517/dac/dacopen/mcp2221a"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type Kind string

const (
	KindUSB      Kind = "usb"
	KindPlatform Kind = "platform"
)

// Path describes where a DAC is attached:
//   usb[:serial[:addr]]
//   platform[:bus[:addr]]
type Path struct {
	Kind Kind
	// Bridge serial number for usb, bus name for platform. Empty picks the
	// first one found.
	Bus  string
	Addr i2c.Addr
}

func (p Path) String() string {
	return fmt.Sprintf("%s:%s:0x%02x", p.Kind, p.Bus, uint16(p.Addr))
}

func getPart(parts []string, index int, def string) string {
	if index >= len(parts) || parts[index] == "" {
		return def
	}
	return parts[index]
}

func ParsePath(path string) (Path, error) {
	parts := strings.Split(path, ":")

	p := Path{
		Kind: Kind(parts[0]),
		Bus:  getPart(parts, 1, ""),
	}

	if p.Kind != KindUSB && p.Kind != KindPlatform {
		return p, errors.New("device type not supported, use 'usb' or 'platform'")
	}
	if len(parts) > 3 {
		return p, fmt.Errorf("too many fields in '%s'", path)
	}

	addr, err := strconv.ParseUint(getPart(parts, 2, "0x2C"), 0, 7)
	if err != nil {
		return p, fmt.Errorf("invalid address: %v", err)
	}
	p.Addr = i2c.Addr(addr)

	return p, nil
}

// USBProductID is the PID bridges are searched with.
var USBProductID uint16 = mcp2221a.PID

func openUSB(serial string) (i2c.BusCloser, error) {
	dev, err := mcp2221a.Open(serial, USBProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to open USB bridge: %v", err)
	}

	if err := dev.SetSpeed(mcp2221a.DefaultSpeed); err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to configure USB bridge: %v", err)
	}

	return mcp2221a.NewBus(dev), nil
}

func openPlatform(busID string) (i2c.BusCloser, error) {
	// host.Init only does work on the first call.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %v", err)
	}

	bus, err := i2creg.Open(busID)
	if err != nil {
		return nil, fmt.Errorf("could not open bus: %v", err)
	}

	return bus, nil
}

func OpenBus(p Path) (i2c.BusCloser, error) {
	switch p.Kind {
	case KindUSB:
		return openUSB(p.Bus)
	case KindPlatform:
		return openPlatform(p.Bus)
	}

	return nil, errors.New("device type not supported, use 'usb' or 'platform'")
}

// Open opens the bus named by path and binds a controller to it. The caller
// owns the returned bus and must close it.
func Open(path string, logFunc dac.LogFunc) (*dac.Controller, i2c.BusCloser, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, nil, err
	}

	bus, err := OpenBus(p)
	if err != nil {
		return nil, nil, err
	}

	return dac.New(bus, p.Addr, logFunc), bus, nil
}
