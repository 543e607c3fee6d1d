package device

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatal(err)
	}
	return mac
}

func TestDeriveFromMAC(t *testing.T) {
	addrs := func() ([]hwAddr, error) {
		return []hwAddr{
			{name: "wlan0", mac: mustMAC(t, "b8:27:eb:12:34:56"), physical: true},
			{name: "eth0", mac: mustMAC(t, "dc:a6:32:ab:cd:ef"), physical: true},
		}, nil
	}
	noFile := func(string) ([]byte, error) { return nil, errors.New("unused") }

	id, err := derive(addrs, noFile)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	// eth0 sorts first
	if id != "abcdef" {
		t.Errorf("got %q, want abcdef", id)
	}
}

func TestDeriveSkipsEmptyAndZeroMAC(t *testing.T) {
	addrs := func() ([]hwAddr, error) {
		return []hwAddr{
			{name: "a0", mac: nil, physical: true},
			{name: "a1", mac: mustMAC(t, "00:00:00:00:00:00"), physical: true},
			{name: "a2", mac: mustMAC(t, "02:42:ac:11:00:02"), physical: true},
		}, nil
	}
	id, err := derive(addrs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != "110002" {
		t.Errorf("got %q, want 110002", id)
	}
}

func TestDeriveSkipsVirtualInterfaces(t *testing.T) {
	addrs := func() ([]hwAddr, error) {
		return []hwAddr{
			{name: "br-3f2a", mac: mustMAC(t, "02:42:9a:01:02:03")},
			{name: "docker0", mac: mustMAC(t, "02:42:5c:aa:bb:cc")},
			{name: "eth0", mac: mustMAC(t, "dc:a6:32:ab:cd:ef"), physical: true},
			{name: "veth12ab", mac: mustMAC(t, "8e:11:22:33:44:55")},
		}, nil
	}
	id, err := derive(addrs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != "abcdef" {
		t.Errorf("got %q, want abcdef", id)
	}
}

func TestDeriveOnlyVirtualUsesMachineID(t *testing.T) {
	addrs := func() ([]hwAddr, error) {
		return []hwAddr{{name: "docker0", mac: mustMAC(t, "02:42:5c:aa:bb:cc")}}, nil
	}
	read := func(string) ([]byte, error) { return []byte("77e0c1d2\n"), nil }
	id, err := derive(addrs, read)
	if err != nil {
		t.Fatal(err)
	}
	if id != "77e0c1" {
		t.Errorf("got %q, want 77e0c1", id)
	}
}

func TestIsPhysical(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "eth0", "device"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "docker0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !isPhysical(root, "eth0") {
		t.Error("eth0 should be physical")
	}
	if isPhysical(root, "docker0") {
		t.Error("docker0 should be virtual")
	}
	if isPhysical(root, "missing") {
		t.Error("missing interface should not be physical")
	}
}

func TestDeriveFallsBackToMachineID(t *testing.T) {
	addrs := func() ([]hwAddr, error) { return nil, nil }
	read := func(path string) ([]byte, error) {
		if path != MachineIDPath {
			t.Errorf("read %q", path)
		}
		return []byte("9F3C21aa0000000000000000\n"), nil
	}
	id, err := derive(addrs, read)
	if err != nil {
		t.Fatal(err)
	}
	if id != "9f3c21" {
		t.Errorf("got %q, want 9f3c21", id)
	}
}

func TestDeriveNoSource(t *testing.T) {
	addrs := func() ([]hwAddr, error) { return nil, errors.New("no net") }
	read := func(string) ([]byte, error) { return nil, errors.New("no file") }
	if _, err := derive(addrs, read); err == nil {
		t.Error("expected error")
	}

	short := func(string) ([]byte, error) { return []byte("abc"), nil }
	if _, err := derive(addrs, short); err == nil {
		t.Error("expected error for short machine id")
	}
}

func TestSegment(t *testing.T) {
	if got := Segment("abcdef"); got != "mw_motion_abcdef" {
		t.Errorf("got %q", got)
	}
}
