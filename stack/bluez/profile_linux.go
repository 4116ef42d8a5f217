//go:build linux

package bluez

import (
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/xid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/darkhz/btspp/stack"
)

// writeQueueSize is the number of writes a link buffers before it reports congestion.
const writeQueueSize = 16

// profile is a BlueZ SPP profile. BlueZ hands the RFCOMM socket of every
// connection for the profile to NewConnection.
type profile struct {
	s      *Stack
	bus    *dbus.Conn
	path   dbus.ObjectPath
	server bool
}

// link is an open RFCOMM connection.
type link struct {
	s       *Stack
	handle  stack.Handle
	address stack.MacAddress
	device  dbus.ObjectPath
	server  bool
	file    *os.File

	writes    chan []byte
	congested atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// registerProfile exports and registers an SPP profile.
func registerProfile(s *Stack, bus *dbus.Conn, server bool, options map[string]dbus.Variant) (*profile, error) {
	role := "client"
	if server {
		role = "server"
	}

	p := &profile{
		s:      s,
		bus:    bus,
		path:   dbus.ObjectPath("/org/btspp/profile/" + role + xid.New().String()),
		server: server,
	}

	if err := bus.Export(p, p.path, bluezProfileIface); err != nil {
		return nil, err
	}

	options["Role"] = dbus.MakeVariant(role)

	if err := bus.Object(bluezBusName, bluezManagerPath).
		Call(bluezProfileManager+".RegisterProfile", 0, p.path, stack.SerialPortUUID.String(), options).
		Store(); err != nil {
		bus.Export(nil, p.path, bluezProfileIface)
		return nil, err
	}

	return p, nil
}

func (p *profile) unregister() error {
	defer p.bus.Export(nil, p.path, bluezProfileIface)

	return p.bus.Object(bluezBusName, bluezManagerPath).
		Call(bluezProfileManager+".UnregisterProfile", 0, p.path).
		Store()
}

// NewConnection takes over the RFCOMM socket of a new connection.
// A server accepts a single connection at a time.
func (p *profile) NewConnection(devicePath dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	address, _ := addressFromPath(devicePath)

	if p.server && p.s.hasServerLink() {
		unix.Close(int(fd))
		return dbus.NewError("org.bluez.Error.Rejected", []any{"already connected"})
	}

	if err := unix.SetNonblock(int(fd), true); err != nil {
		unix.Close(int(fd))
		return dbus.MakeFailedError(err)
	}

	l := &link{
		s:       p.s,
		handle:  stack.Handle(p.s.nextHandle.Inc()),
		address: address,
		device:  devicePath,
		server:  p.server,
		file:    os.NewFile(uintptr(fd), "rfcomm"),
		writes:  make(chan []byte, writeQueueSize),
		done:    make(chan struct{}),
	}
	p.s.links.Store(l.handle, l)

	p.s.log.Info("Connection opened",
		zap.Stringer("address", address),
		zap.Uint32("handle", uint32(l.handle)),
		zap.Bool("server", p.server),
	)

	if p.server {
		p.s.emit(stack.ServerChannelOpen{Status: stack.StatusSuccess, Handle: l.handle, Address: address})
	} else {
		p.s.emit(stack.ChannelOpen{Status: stack.StatusSuccess, Handle: l.handle, Address: address})
	}

	go l.readLoop()
	go l.writeLoop()

	return nil
}

// RequestDisconnection closes the connections to a device.
func (p *profile) RequestDisconnection(devicePath dbus.ObjectPath) *dbus.Error {
	p.s.links.Range(func(_ stack.Handle, l *link) bool {
		if l.device == devicePath {
			l.close()
		}

		return true
	})

	return nil
}

// Release is called when the profile is unregistered.
func (p *profile) Release() *dbus.Error {
	return nil
}

// StartServer registers the SPP server profile.
func (s *Stack) StartServer(sec stack.Security, _ stack.Role, channel uint8, name string) error {
	bus, _, err := s.conn()
	if err != nil {
		return err
	}

	options := securityOptions(sec)
	options["Name"] = dbus.MakeVariant(name)
	options["AutoConnect"] = dbus.MakeVariant(false)
	if channel > 0 {
		options["Channel"] = dbus.MakeVariant(uint16(channel))
	}

	s.mu.Lock()
	if s.server == nil {
		p, err := registerProfile(s, bus, true, options)
		if err != nil {
			s.mu.Unlock()
			return wrapError(err, "register-server-profile", "Cannot register the SPP server profile")
		}

		s.server = p
	}
	s.mu.Unlock()

	s.emit(stack.ServerStarted{Status: stack.StatusSuccess, Channel: channel})

	return nil
}

// Connect pairs with the device if needed, and connects to its SPP service.
// BlueZ picks the RFCOMM channel and the link role itself.
func (s *Stack) Connect(sec stack.Security, _ stack.Role, _ uint8, address stack.MacAddress) error {
	bus, adapter, err := s.conn()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.client == nil {
		p, err := registerProfile(s, bus, false, securityOptions(sec))
		if err != nil {
			s.mu.Unlock()
			return wrapError(err, "register-client-profile", "Cannot register the SPP client profile")
		}

		s.client = p
	}
	s.mu.Unlock()

	go func() {
		path := devicePath(adapter, address)
		device := bus.Object(bluezBusName, path)

		if sec >= stack.SecurityAuthenticate {
			v, err := getProperty(bus, path, bluezDeviceIface, "Paired")
			if paired, _ := v.Value().(bool); err == nil && !paired {
				if err := device.Call(bluezDeviceIface+".Pair", 0).Store(); err != nil {
					s.log.Warn("Pairing failed", zap.Stringer("address", address), zap.Error(err))

					s.emit(stack.AuthComplete{Status: stack.StatusAuthFailure, Address: address})
					s.emit(stack.ChannelOpen{Status: stack.StatusAuthFailure, Address: address})

					return
				}
			}
		}

		if err := device.Call(bluezDeviceIface+".ConnectProfile", 0, stack.SerialPortUUID.String()).Store(); err != nil {
			s.log.Warn("Cannot connect to the SPP service", zap.Stringer("address", address), zap.Error(err))
			s.emit(stack.ChannelOpen{Status: stack.StatusFailure, Address: address})
		}
	}()

	return nil
}

// Disconnect closes a connection. The close is reported by a ChannelClose event.
func (s *Stack) Disconnect(handle stack.Handle) error {
	l, ok := s.links.Load(handle)
	if !ok {
		return ErrNoConnection
	}

	l.close()

	return nil
}

// Write queues data for a connection. If the queue is full, the data is
// rejected with ErrCongested and a Congestion event is emitted.
func (s *Stack) Write(handle stack.Handle, data []byte) error {
	l, ok := s.links.Load(handle)
	if !ok {
		return ErrNoConnection
	}

	return l.enqueue(append([]byte(nil), data...))
}

func (s *Stack) hasServerLink() bool {
	var found bool

	s.links.Range(func(_ stack.Handle, l *link) bool {
		found = l.server

		return !found
	})

	return found
}

func securityOptions(sec stack.Security) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"RequireAuthentication": dbus.MakeVariant(sec >= stack.SecurityAuthenticate),
		"RequireAuthorization":  dbus.MakeVariant(sec == stack.SecurityAuthorize),
	}
}

func (l *link) enqueue(data []byte) error {
	select {
	case <-l.done:
		return ErrNoConnection

	default:
	}

	select {
	case <-l.done:
		return ErrNoConnection

	case l.writes <- data:
		return nil

	default:
		if !l.congested.Swap(true) {
			go l.s.emit(stack.Congestion{Status: stack.StatusSuccess, Handle: l.handle, Congested: true})
		}

		return ErrCongested
	}
}

func (l *link) readLoop() {
	buf := make([]byte, stack.MaxPayload)

	for {
		n, err := l.file.Read(buf)
		if n > 0 {
			l.s.emit(stack.DataIndication{
				Handle: l.handle,
				Data:   append([]byte(nil), buf[:n]...),
			})
		}

		if err != nil {
			break
		}
	}

	l.close()
	l.s.links.Delete(l.handle)

	l.s.log.Info("Connection closed", zap.Stringer("address", l.address), zap.Uint32("handle", uint32(l.handle)))
	l.s.emit(stack.ChannelClose{Status: stack.StatusSuccess, Handle: l.handle})
}

func (l *link) writeLoop() {
	for {
		select {
		case <-l.done:
			return

		case data := <-l.writes:
			status := stack.StatusSuccess

			n, err := l.file.Write(data)
			if err != nil {
				status = stack.StatusFailure
				l.s.log.Warn("Write failed", zap.Uint32("handle", uint32(l.handle)), zap.Error(err))
			}

			pending := len(l.writes)
			l.s.emit(stack.WriteComplete{
				Status:    status,
				Handle:    l.handle,
				Length:    n,
				Congested: pending == cap(l.writes),
			})

			if pending < writeQueueSize/2 && l.congested.Swap(false) {
				l.s.emit(stack.Congestion{Status: stack.StatusSuccess, Handle: l.handle, Congested: false})
			}
		}
	}
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.file.Close()
	})
}
