// Package mcp2221a drives the I²C master of a Microchip MCP2221A USB bridge.
// Only addressed writes are supported, which is all a MAX517 needs.
//
// Datasheet: http://ww1.microchip.com/downloads/en/devicedoc/20005565b.pdf
package mcp2221a

// Derived from https://github.com/ardnew/mcp2221a
// MIT License
//
// Copyright (c) 2020 ardnew
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

import (
	"errors"
	"fmt"
	"io"
	"time"

	usb "github.com/karalabe/hid"
)

const (
	VID = 0x04D8
	PID = 0x00DD
)

// All HID reports are 64 bytes in both directions.
const msgSize = 64

const clkHz = 12000000

// DefaultSpeed is the bus speed after power-up in Hz.
const DefaultSpeed = 100000

const (
	cmdStatus    byte = 0x10
	cmdSetParams byte = 0x10
	cmdI2CWrite  byte = 0x90
)

const (
	writeMax   = 60
	writeRetry = 50
	pollDelay  = 300 * time.Microsecond
)

// I²C engine states reported in the status response.
const (
	stateIdle           byte = 0x00
	stateStartTimeout   byte = 0x12
	stateRepStartTmo    byte = 0x17
	stateAddrTimeout    byte = 0x23
	stateAddrNACK       byte = 0x25
	statePartialData    byte = 0x41
	stateWriteTimeout   byte = 0x44
	stateReadTimeout    byte = 0x52
	stateStopTimeout    byte = 0x62
	stateCancelAccepted byte = 0x10
	stateSpeedBusy      byte = 0x21
)

var (
	ErrNACK    = errors.New("mcp2221a: I²C NACK")
	ErrTimeout = errors.New("mcp2221a: I²C timeout")
	ErrRetries = errors.New("mcp2221a: too many retries")
)

func isTimeout(state byte) bool {
	switch state {
	case stateStartTimeout, stateRepStartTmo, stateAddrTimeout,
		stateWriteTimeout, stateReadTimeout, stateStopTimeout:
		return true
	}
	return false
}

// Device is an opened bridge. It is not safe for concurrent use, see Bus.
type Device struct {
	dev    io.ReadWriteCloser
	Serial string
}

// Attached lists bridges with the given product ID. Some boards ship with a
// custom PID, so it is not fixed to PID.
func Attached(pid uint16) []usb.DeviceInfo {
	return usb.Enumerate(VID, pid)
}

// Open opens the first bridge whose serial matches, or the first one found
// when serial is empty.
func Open(serial string, pid uint16) (*Device, error) {
	for _, m := range Attached(pid) {
		if serial != "" && m.Serial != serial {
			continue
		}

		hid, err := m.Open()
		if err != nil {
			return nil, err
		}

		return &Device{dev: hid, Serial: m.Serial}, nil
	}

	return nil, errors.New("no device found")
}

func (d *Device) Close() error {
	return d.dev.Close()
}

func (d *Device) send(cmd []byte) ([]byte, error) {
	if _, err := d.dev.Write(cmd); err != nil {
		return nil, fmt.Errorf("write 0x%02x: %v", cmd[0], err)
	}

	rsp := make([]byte, msgSize)
	n, err := d.dev.Read(rsp)
	if err != nil {
		return nil, fmt.Errorf("read 0x%02x: %v", cmd[0], err)
	}
	if n < msgSize {
		return rsp, fmt.Errorf("read 0x%02x: short read (%d bytes)", cmd[0], n)
	}
	if rsp[0] != cmd[0] || rsp[1] != 0 {
		return rsp, fmt.Errorf("command 0x%02x failed", cmd[0])
	}

	return rsp, nil
}

func newMsg(cmd byte) []byte {
	msg := make([]byte, msgSize)
	msg[0] = cmd
	return msg
}

func (d *Device) state() (byte, error) {
	rsp, err := d.send(newMsg(cmdStatus))
	if err != nil {
		return 0, err
	}
	return rsp[8], nil
}

// Cancel aborts a transfer left behind by an earlier failure.
func (d *Device) Cancel() error {
	cmd := newMsg(cmdSetParams)
	cmd[2] = 0x10

	rsp, err := d.send(cmd)
	if err != nil {
		return err
	}
	if rsp[2] == stateCancelAccepted {
		time.Sleep(pollDelay)
	}
	return nil
}

// SetSpeed sets the SCL frequency in Hz. It is not stored in flash.
func (d *Device) SetSpeed(hz uint32) error {
	if hz > clkHz/3 || hz < clkHz/258 {
		return fmt.Errorf("invalid bus speed: %d", hz)
	}

	cmd := newMsg(cmdSetParams)
	cmd[3] = 0x20
	cmd[4] = byte(clkHz/hz - 3)

	rsp, err := d.send(cmd)
	if err != nil {
		return err
	}
	if rsp[3] == stateSpeedBusy {
		return errors.New("transfer in progress")
	}
	return nil
}

// Write performs one addressed write terminated by a STOP condition.
func (d *Device) Write(addr uint8, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	state, err := d.state()
	if err != nil {
		return err
	}
	if state != stateIdle {
		if err := d.Cancel(); err != nil {
			return err
		}
	}

	for pos := 0; pos < len(data); {
		sz := len(data) - pos
		if sz > writeMax {
			sz = writeMax
		}

		cmd := newMsg(cmdI2CWrite)
		cmd[1] = byte(len(data))
		cmd[2] = byte(len(data) >> 8)
		cmd[3] = addr << 1
		copy(cmd[4:], data[pos:pos+sz])

		if err := d.writeChunk(cmd); err != nil {
			return err
		}
		pos += sz
	}

	return d.waitIdle()
}

func (d *Device) writeChunk(cmd []byte) error {
	for retry := 0; retry < writeRetry; retry++ {
		rsp, err := d.send(cmd)
		if err != nil {
			if rsp == nil {
				return err
			}
			if rsp[2] == stateAddrNACK {
				return ErrNACK
			}
			if isTimeout(rsp[2]) {
				return ErrTimeout
			}
			time.Sleep(pollDelay)
			continue
		}

		return d.waitChunk()
	}

	return ErrRetries
}

// waitChunk waits until the bridge has clocked out the last chunk.
func (d *Device) waitChunk() error {
	for retry := 0; retry < writeRetry; retry++ {
		state, err := d.state()
		if err != nil {
			return err
		}

		switch {
		case state == stateAddrNACK:
			return ErrNACK
		case isTimeout(state):
			return ErrTimeout
		case state != statePartialData:
			return nil
		}
		time.Sleep(pollDelay)
	}

	return ErrRetries
}

func (d *Device) waitIdle() error {
	for retry := 0; retry < writeRetry; retry++ {
		state, err := d.state()
		if err != nil {
			return err
		}

		switch {
		case state == stateIdle:
			return nil
		case state == stateAddrNACK:
			return ErrNACK
		case isTimeout(state):
			return ErrTimeout
		}
		time.Sleep(pollDelay)
	}

	return ErrRetries
}
