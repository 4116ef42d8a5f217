//go:build linux

package bluez

import (
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/darkhz/btspp/stack"
)

// inquiryUnit is the unit of stack.Inquiry.Length.
const inquiryUnit = 1280 * time.Millisecond

// deviceInfo holds the properties of a remote device that discovery and
// pairing need.
type deviceInfo struct {
	address stack.MacAddress
	name    string
	class   uint32
	rssi    int16
	uuids   []string
	paired  bool
}

// discovery tracks an inquiry started by StartDiscovery.
type discovery struct {
	active    atomic.Bool
	responses atomic.Uint32
	limit     atomic.Uint32

	mu    sync.Mutex
	timer *time.Timer
}

// update merges changed D-Bus properties into the device info.
func (d deviceInfo) update(props map[string]dbus.Variant) deviceInfo {
	for key, v := range props {
		switch key {
		case "Address":
			if s, ok := v.Value().(string); ok {
				if address, err := stack.ParseMAC(s); err == nil {
					d.address = address
				}
			}

		case "Name":
			if name, ok := v.Value().(string); ok {
				d.name = name
			}

		case "Class":
			if class, ok := v.Value().(uint32); ok {
				d.class = class
			}

		case "RSSI":
			if rssi, ok := v.Value().(int16); ok {
				d.rssi = rssi
			}

		case "UUIDs":
			if uuids, ok := v.Value().([]string); ok {
				d.uuids = uuids
			}

		case "Paired":
			if paired, ok := v.Value().(bool); ok {
				d.paired = paired
			}
		}
	}

	return d
}

// result converts the device info into a discovery result. BlueZ does not
// expose raw EIR data, so the EIR property is rebuilt from the device name.
func (d deviceInfo) result() stack.DiscoveryResult {
	res := stack.DiscoveryResult{Address: d.address}

	if d.name != "" {
		res.Properties = append(res.Properties,
			stack.DeviceProperty{Type: stack.PropertyBDName, Value: []byte(d.name)},
			stack.DeviceProperty{
				Type:  stack.PropertyEIR,
				Value: stack.AppendEIR(nil, stack.EIRCompleteLocalName, []byte(d.name)),
			},
		)
	}

	if d.class != 0 {
		res.Properties = append(res.Properties, stack.DeviceProperty{
			Type:  stack.PropertyClassOfDevice,
			Value: []byte{byte(d.class), byte(d.class >> 8), byte(d.class >> 16)},
		})
	}

	if d.rssi != 0 {
		res.Properties = append(res.Properties, stack.DeviceProperty{
			Type:  stack.PropertyRSSI,
			Value: []byte{byte(int8(d.rssi))},
		})
	}

	return res
}

// hasService reports whether the device advertises the service with the provided UUID.
func (d deviceInfo) hasService(uuid string) bool {
	for _, u := range d.uuids {
		if strings.EqualFold(u, uuid) {
			return true
		}
	}

	return false
}

// StartDiscovery starts a BR/EDR inquiry, which is stopped once the
// inquiry length elapses or enough devices responded.
func (s *Stack) StartDiscovery(inquiry stack.Inquiry) error {
	bus, adapter, err := s.conn()
	if err != nil {
		return err
	}

	if inquiry.Mode == stack.InquiryLimited {
		s.log.Debug("Limited inquiry is not supported, using a general inquiry")
	}

	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("bredr")}
	if err := bus.Object(bluezBusName, adapter).Call(bluezAdapterIface+".SetDiscoveryFilter", 0, filter).Store(); err != nil {
		s.log.Warn("Cannot set the discovery filter", zap.Error(err))
	}

	s.refreshDevices(bus, adapter)

	if err := bus.Object(bluezBusName, adapter).Call(bluezAdapterIface+".StartDiscovery", 0).Store(); err != nil {
		return wrapError(err, "adapter-start-discovery", "An error occurred while starting device discovery",
			"adapter", adapterName(adapter),
		)
	}

	length := inquiry.Length
	if length == 0 {
		length = stack.DefaultInquiryLength
	}

	s.discovery.mu.Lock()
	if s.discovery.timer != nil {
		s.discovery.timer.Stop()
	}
	s.discovery.limit.Store(uint32(inquiry.MaxResponses))
	s.discovery.responses.Store(0)
	s.discovery.active.Store(true)
	s.discovery.timer = time.AfterFunc(time.Duration(length)*inquiryUnit, func() {
		if err := s.CancelDiscovery(); err != nil {
			s.log.Warn("Cannot stop discovery", zap.Error(err))
		}
	})
	s.discovery.mu.Unlock()

	go s.emit(stack.DiscoveryStateChanged{Started: true})

	return nil
}

// CancelDiscovery stops an ongoing inquiry.
func (s *Stack) CancelDiscovery() error {
	s.stopDiscoveryTimer()

	if !s.discovery.active.Swap(false) {
		return nil
	}

	bus, adapter, err := s.conn()
	if err != nil {
		return err
	}

	go s.emit(stack.DiscoveryStateChanged{Started: false})

	if err := bus.Object(bluezBusName, adapter).Call(bluezAdapterIface+".StopDiscovery", 0).Store(); err != nil {
		return wrapError(err, "adapter-stop-discovery", "An error occurred while stopping device discovery",
			"adapter", adapterName(adapter),
		)
	}

	return nil
}

// StartServiceDiscovery checks whether the device offers the serial port service.
//
// BlueZ resolves the RFCOMM channel itself when connecting, so the reported
// channel is always 0. A device whose services are not resolved yet is
// assumed to offer the service.
func (s *Stack) StartServiceDiscovery(address stack.MacAddress) error {
	bus, adapter, err := s.conn()
	if err != nil {
		return err
	}

	go func() {
		path := devicePath(adapter, address)
		ev := stack.ServiceDiscoveryComplete{Address: address}

		info, ok := s.devices.Load(path)
		if !ok || len(info.uuids) == 0 {
			v, err := getProperty(bus, path, bluezDeviceIface, "UUIDs")
			if err != nil {
				s.log.Warn("Cannot read device services", zap.Stringer("address", address), zap.Error(err))

				ev.Status = stack.StatusFailure
				s.emit(ev)

				return
			}

			info.uuids, _ = v.Value().([]string)
		}

		switch {
		case len(info.uuids) == 0, info.hasService(stack.SerialPortUUID.String()):
			ev.Status = stack.StatusSuccess
			ev.Channels = []uint8{0}

		default:
			ev.Status = stack.StatusFailure
		}

		s.emit(ev)
	}()

	return nil
}

func (s *Stack) stopDiscoveryTimer() {
	s.discovery.mu.Lock()
	defer s.discovery.mu.Unlock()

	if s.discovery.timer != nil {
		s.discovery.timer.Stop()
		s.discovery.timer = nil
	}
}

// refreshDevices loads the devices BlueZ already knows about under the adapter.
func (s *Stack) refreshDevices(bus *dbus.Conn, adapter dbus.ObjectPath) {
	objects, err := managedObjects(bus)
	if err != nil {
		s.log.Warn("Cannot load known devices", zap.Error(err))
		return
	}

	for path, ifaces := range objects {
		props, ok := ifaces[bluezDeviceIface]
		if !ok || !strings.HasPrefix(string(path), string(adapter)+"/") {
			continue
		}

		info, _ := s.devices.Load(path)
		s.devices.Store(path, info.update(props))
	}
}

// watchSignals listens for BlueZ signals until done is closed.
func (s *Stack) watchSignals(bus *dbus.Conn, done <-chan struct{}) {
	if err := bus.AddMatchSignal(dbus.WithMatchSender(bluezBusName)); err != nil {
		s.log.Error("Cannot watch Bluez signals", zap.Error(err))
		return
	}

	ch := make(chan *dbus.Signal, 16)
	bus.Signal(ch)
	defer bus.RemoveSignal(ch)

	for {
		select {
		case <-done:
			return

		case signal, ok := <-ch:
			if !ok {
				return
			}

			s.parseSignal(signal)
		}
	}
}

func (s *Stack) parseSignal(signal *dbus.Signal) {
	if len(signal.Body) < 2 {
		return
	}

	switch signal.Name {
	case dbusInterfacesAdded:
		path, ok := signal.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}

		ifaces, ok := signal.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}

		if props, ok := ifaces[bluezDeviceIface]; ok {
			s.deviceChanged(path, props)
		}

	case dbusPropertiesChange:
		iface, ok := signal.Body[0].(string)
		if !ok {
			return
		}

		props, ok := signal.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}

		switch iface {
		case bluezDeviceIface:
			s.deviceChanged(signal.Path, props)

		case bluezAdapterIface:
			v, ok := props["Discovering"]
			if !ok {
				return
			}

			if discovering, _ := v.Value().(bool); !discovering && s.discovery.active.Swap(false) {
				s.stopDiscoveryTimer()
				s.emit(stack.DiscoveryStateChanged{Started: false})
			}
		}
	}
}

// deviceChanged updates a device, and reports it as a discovery result or
// a completed pairing when relevant.
func (s *Stack) deviceChanged(path dbus.ObjectPath, props map[string]dbus.Variant) {
	_, adapter, err := s.conn()
	if err != nil || !strings.HasPrefix(string(path), string(adapter)+"/") {
		return
	}

	old, _ := s.devices.Load(path)

	info := old.update(props)
	if info.address.IsNil() {
		if address, ok := addressFromPath(path); ok {
			info.address = address
		}
	}
	s.devices.Store(path, info)

	if info.paired && !old.paired {
		s.emit(stack.AuthComplete{Status: stack.StatusSuccess, Address: info.address, Name: info.name})
	}

	_, seen := props["RSSI"]
	_, named := props["Name"]
	if (!seen && !named) || !s.discovery.active.Load() {
		return
	}

	s.emit(info.result())

	if limit := s.discovery.limit.Load(); limit > 0 && s.discovery.responses.Inc() >= limit {
		go func() {
			if err := s.CancelDiscovery(); err != nil {
				s.log.Warn("Cannot stop discovery", zap.Error(err))
			}
		}()
	}
}
