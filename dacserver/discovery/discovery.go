// Package discovery announces dacserver instances over mDNS and finds them
// again from clients.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const serviceType = "_max517._tcp"

type Announcer struct {
	name      string
	port      int
	txtRecord []string

	server *zeroconf.Server
}

func NewAnnouncer(deviceID string, name string, port int, count int) *Announcer {
	if name == "" {
		name = "max517"
	}

	return &Announcer{
		txtRecord: []string{"deviceid=" + deviceID, "count=" + strconv.Itoa(count)},
		name:      name,
		port:      port,
	}
}

func (a *Announcer) Start(ifaceName string) error {
	a.Stop()

	var ifaces []net.Interface
	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return err
		}
		ifaces = append(ifaces, *iface)
	}

	server, err := zeroconf.Register(a.name, serviceType, "local.", a.port, a.txtRecord, ifaces)
	if err != nil {
		return err
	}
	server.TTL(60)

	a.server = server
	return nil
}

func (a *Announcer) Stop() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}

type Result struct {
	DeviceID string
	Count    int
	Addr     string
}

// parseText extracts the announcement fields. ok is false for entries that
// are not ours.
func parseText(text []string) (deviceID string, count int, ok bool) {
	var countStr string
	for _, m := range text {
		kv := strings.SplitN(m, "=", 2)
		if len(kv) != 2 {
			continue
		}

		switch strings.ToLower(kv[0]) {
		case "deviceid":
			deviceID = kv[1]
		case "count":
			countStr = kv[1]
		}
	}

	if deviceID == "" {
		return "", 0, false
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return "", 0, false
	}

	return deviceID, count, true
}

func entryAddr(e *zeroconf.ServiceEntry) string {
	var addr string
	if len(e.AddrIPv4) > 0 {
		addr = e.AddrIPv4[0].String()
	} else if len(e.AddrIPv6) > 0 {
		addr = "[" + e.AddrIPv6[0].String() + "]"
	}

	return addr + fmt.Sprintf(":%d", e.Port)
}

// Find browses for a server. An empty filterDeviceID accepts the first one.
func Find(filterDeviceID string, timeout time.Duration) (Result, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Result{}, err
	}

	results := make(chan *zeroconf.ServiceEntry)
	browseErr := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	go func() {
		if err := resolver.Browse(ctx, serviceType, "local", results); err != nil {
			browseErr <- err
		}
	}()

	return collect(ctx, filterDeviceID, results, browseErr)
}

func collect(ctx context.Context, filterDeviceID string, results <-chan *zeroconf.ServiceEntry, browseErr <-chan error) (Result, error) {
	for {
		select {
		case m, ok := <-results:
			if !ok {
				return Result{}, errors.New("no results")
			}

			deviceID, count, ok := parseText(m.Text)
			if !ok {
				continue
			}

			if filterDeviceID != "" && deviceID != filterDeviceID {
				continue
			}

			return Result{
				DeviceID: deviceID,
				Count:    count,
				Addr:     entryAddr(m),
			}, nil

		case err := <-browseErr:
			return Result{}, err

		case <-ctx.Done():
			return Result{}, errors.New("no results")
		}
	}
}
