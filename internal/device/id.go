// Package device derives the stable hardware identity used to namespace
// MQTT topics.
package device

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Prefix is prepended to the id to form the topic device segment.
const Prefix = "mw_motion_"

// MachineIDPath is read when no hardware address is available.
var MachineIDPath = "/etc/machine-id"

// SysClassNet lists network interfaces. Only interfaces with a backing
// device there are used for the id; bridges, veth pairs and other virtual
// links are skipped since their addresses can change across boots.
var SysClassNet = "/sys/class/net"

var (
	once     sync.Once
	cachedID string
	cacheErr error
)

// ID returns the device id, derived on first call and cached for the
// process lifetime. It is the last three bytes of the first physical,
// non-loopback hardware address as lowercase hex, or the first six
// characters of the machine id.
func ID() (string, error) {
	once.Do(func() {
		cachedID, cacheErr = derive(interfaceAddrs, os.ReadFile)
	})
	return cachedID, cacheErr
}

// Segment returns Prefix + id.
func Segment(id string) string {
	return Prefix + id
}

type hwAddr struct {
	name     string
	mac      net.HardwareAddr
	physical bool
}

func interfaceAddrs() ([]hwAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	// Without sysfs every interface counts as physical
	_, err = os.Stat(SysClassNet)
	sysfs := err == nil

	var out []hwAddr
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		out = append(out, hwAddr{
			name:     ifc.Name,
			mac:      ifc.HardwareAddr,
			physical: !sysfs || isPhysical(SysClassNet, ifc.Name),
		})
	}
	return out, nil
}

// isPhysical reports whether root/name is backed by a device.
func isPhysical(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name, "device"))
	return err == nil
}

func derive(addrs func() ([]hwAddr, error), readFile func(string) ([]byte, error)) (string, error) {
	list, err := addrs()
	if err == nil {
		// Interface order is not guaranteed stable across boots.
		sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
		for _, a := range list {
			if !a.physical {
				continue
			}
			if id, ok := fromMAC(a.mac); ok {
				return id, nil
			}
		}
	}

	data, ferr := readFile(MachineIDPath)
	if ferr != nil {
		return "", fmt.Errorf("device: no hardware address and no machine id: %w", errors.Join(err, ferr))
	}
	mid := strings.ToLower(strings.TrimSpace(string(data)))
	if len(mid) < 6 {
		return "", fmt.Errorf("device: machine id too short")
	}
	return mid[:6], nil
}

func fromMAC(mac net.HardwareAddr) (string, bool) {
	if len(mac) < 3 {
		return "", false
	}
	zero := true
	for _, b := range mac {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return "", false
	}
	return hex.EncodeToString(mac[len(mac)-3:]), true
}
