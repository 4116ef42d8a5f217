//go:build linux

package bluez

import (
	"bytes"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/darkhz/btspp/stack"
)

func TestDeviceInfoUpdate(t *testing.T) {
	info := deviceInfo{}.update(map[string]dbus.Variant{
		"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
		"Name":    dbus.MakeVariant("TARGET"),
		"Class":   dbus.MakeVariant(uint32(0x5a020c)),
		"RSSI":    dbus.MakeVariant(int16(-60)),
		"UUIDs":   dbus.MakeVariant([]string{"00001101-0000-1000-8000-00805F9B34FB"}),
		"Paired":  dbus.MakeVariant(true),
	})

	if info.address.String() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("address = %s", info.address)
	}
	if info.name != "TARGET" || info.class != 0x5a020c || info.rssi != -60 || !info.paired {
		t.Errorf("update() = %+v", info)
	}
	if !info.hasService(stack.SerialPortUUID.String()) {
		t.Error("serial port service not found")
	}

	renamed := info.update(map[string]dbus.Variant{"Name": dbus.MakeVariant("OTHER")})
	if renamed.name != "OTHER" || renamed.address != info.address {
		t.Errorf("partial update() = %+v", renamed)
	}
}

func TestDeviceInfoResult(t *testing.T) {
	info := deviceInfo{name: "TARGET", class: 0x5a020c, rssi: -60}
	info.address, _ = stack.ParseMAC("AA:BB:CC:DD:EE:FF")

	res := info.result()
	if res.Address != info.address {
		t.Errorf("Address = %s", res.Address)
	}

	name, ok := res.ResolveName()
	if !ok || !bytes.Equal(name, []byte("TARGET")) {
		t.Errorf("ResolveName() = %q, %v", name, ok)
	}

	var class []byte
	for _, p := range res.Properties {
		if p.Type == stack.PropertyClassOfDevice {
			class = p.Value
		}
	}
	if !bytes.Equal(class, []byte{0x0c, 0x02, 0x5a}) {
		t.Errorf("class = % x", class)
	}
}

func TestDeviceInfoResultWithoutName(t *testing.T) {
	res := deviceInfo{}.result()
	if _, ok := res.ResolveName(); ok {
		t.Error("unnamed device resolved a name")
	}
}
