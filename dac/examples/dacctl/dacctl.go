package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BertoldVdb/go-misc/logrusconfig"
	"github.com/BertoldVdb/max517/dac"
	"github.com/BertoldVdb/max517/dac/dacopen"
	"github.com/BertoldVdb/max517/dacserver/dacclient"
	"github.com/BertoldVdb/max517/dacserver/discovery"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

// target is implemented by both the local controller and the HTTP client.
type target interface {
	ResetOutput(powerDownAfter bool) (bool, error)
	SetOutput(value uint8, powerDownAfter bool) (bool, error)
	SetVoltage(mv int, vrefMV int, powerDownAfter bool) (bool, error)
	PowerDown() (bool, error)
	PowerUp() (bool, error)
}

type local struct {
	*dac.Controller
}

func (l local) ResetOutput(powerDownAfter bool) (bool, error) {
	return l.Controller.ResetOutput(powerDownAfter), nil
}

func (l local) SetOutput(value uint8, powerDownAfter bool) (bool, error) {
	return l.Controller.SetOutput(value, powerDownAfter), nil
}

func (l local) SetVoltage(mv int, vrefMV int, powerDownAfter bool) (bool, error) {
	return l.Controller.SetPotential(physic.ElectricPotential(mv)*physic.MilliVolt, physic.ElectricPotential(vrefMV)*physic.MilliVolt, powerDownAfter)
}

func (l local) PowerDown() (bool, error) {
	return l.Controller.PowerDown(), nil
}

func (l local) PowerUp() (bool, error) {
	return l.Controller.PowerUp(), nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command>

Commands:
  set <value> [pd]          write an output code (0-255)
  voltage <mV> <vref> [pd]  write an output voltage
  reset [pd]                set the output to zero
  powerdown                 float the output
  powerup                   restore the last output

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func parsePD(args []string, index int) (bool, error) {
	if index >= len(args) {
		return false, nil
	}
	if args[index] != "pd" {
		return false, fmt.Errorf("unexpected argument '%s'", args[index])
	}
	return true, nil
}

func run(t target, args []string) (bool, error) {
	if len(args) == 0 {
		return false, errors.New("no command given")
	}

	switch args[0] {
	case "set":
		if len(args) < 2 {
			return false, errors.New("set needs a value")
		}
		value, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return false, err
		}
		pd, err := parsePD(args, 2)
		if err != nil {
			return false, err
		}
		return t.SetOutput(uint8(value), pd)

	case "voltage":
		if len(args) < 3 {
			return false, errors.New("voltage needs a value and a reference")
		}
		mv, err := strconv.Atoi(args[1])
		if err != nil {
			return false, err
		}
		vref, err := strconv.Atoi(args[2])
		if err != nil {
			return false, err
		}
		pd, err := parsePD(args, 3)
		if err != nil {
			return false, err
		}
		return t.SetVoltage(mv, vref, pd)

	case "reset":
		pd, err := parsePD(args, 1)
		if err != nil {
			return false, err
		}
		return t.ResetOutput(pd)

	case "powerdown":
		return t.PowerDown()

	case "powerup":
		return t.PowerUp()
	}

	return false, fmt.Errorf("unknown command '%s'", args[0])
}

// connect opens the DAC selected by the flags. The returned closer must be
// called once done.
func connect(log *logrus.Entry, device string, remote string, discover string, index int) (target, io.Closer, error) {
	if device != "" {
		dev, bus, err := dacopen.Open(device, log.Debugf)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open DAC: %v", err)
		}
		return local{dev}, bus, nil
	}

	if discover != "" {
		filter := discover
		if filter == "*" {
			filter = ""
		}

		log.Info("Searching for server")
		result, err := discovery.Find(filter, 10*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to discover: %v", err)
		}
		log.Infof("Found server %s at %s with %d DACs", result.DeviceID, result.Addr, result.Count)
		remote = fmt.Sprintf("http://%s/%d", result.Addr, index)
	}

	if remote != "" {
		client, err := dacclient.New(remote)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect: %v", err)
		}
		return client, client, nil
	}

	return nil, nil, errNoTarget
}

var errNoTarget = errors.New("no device selected")

// exec returns the process exit code: 1 when the transaction was not
// acknowledged, 2 for usage and connection errors.
func exec(log *logrus.Entry, device string, remote string, discover string, index int, args []string) int {
	t, closer, err := connect(log, device, remote, discover, index)
	if err == errNoTarget {
		usage()
		return 2
	}
	if err != nil {
		log.Error(err)
		return 2
	}
	defer closer.Close()

	ack, err := run(t, args)
	if err != nil {
		log.Error(err)
		return 2
	}

	if !ack {
		log.Error("Transaction was not acknowledged")
		return 1
	}

	log.Debug("Done")
	return 0
}

func main() {
	device := flag.String("dev", "", "Device path (usb[:serial[:addr]] or platform[:bus[:addr]])")
	remote := flag.String("remote", "", "URL of a DAC exported by dacserver")
	discover := flag.String("discover", "", "Find a dacserver with this ID via mDNS ('*' for any)")
	index := flag.Int("index", 0, "DAC index on the discovered server")
	logrusconfig.InitParam()

	flag.Usage = usage
	flag.Parse()

	log := logrusconfig.GetLogger(logrus.InfoLevel).WithField("prefix", "dacctl")

	os.Exit(exec(log, *device, *remote, *discover, *index, flag.Args()))
}
