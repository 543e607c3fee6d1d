package device

import (
	"bufio"
	"bytes"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Paths read for link quality and memory. Variables so tests can point
// them elsewhere.
var (
	WirelessPath = "/proc/net/wireless"
	MeminfoPath  = "/proc/meminfo"
)

// SignalLevel returns the signal level in dBm of the first wireless
// interface, and false when there is none.
func SignalLevel() (int, bool) {
	data, err := os.ReadFile(WirelessPath)
	if err != nil {
		return 0, false
	}
	return parseWireless(data)
}

// FreeMemory returns MemAvailable in bytes, falling back to the Go heap's
// idle bytes when the kernel figure is unavailable.
func FreeMemory() uint64 {
	if data, err := os.ReadFile(MeminfoPath); err == nil {
		if v, ok := parseMeminfo(data); ok {
			return v
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle
}

// parseWireless reads the level column of /proc/net/wireless:
//
//	Inter-| sta-|   Quality        |   Discarded packets
//	 face | tus | link level noise |  nwid  crypt   frag
//	wlan0: 0000   54.  -56.  -256        0      0      0
func parseWireless(data []byte) (int, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		i := strings.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		fields := strings.Fields(line[i+1:])
		if len(fields) < 3 {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			continue
		}
		return int(level), true
	}
	return 0, false
}

func parseMeminfo(data []byte) (uint64, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "MemAvailable:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
