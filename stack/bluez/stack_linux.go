//go:build linux

package bluez

import (
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/darkhz/btspp/stack"
)

// The D-Bus names used to talk to BlueZ.
const (
	bluezBusName         = "org.bluez"
	bluezAdapterIface    = "org.bluez.Adapter1"
	bluezDeviceIface     = "org.bluez.Device1"
	bluezAgentIface      = "org.bluez.Agent1"
	bluezAgentManager    = "org.bluez.AgentManager1"
	bluezProfileIface    = "org.bluez.Profile1"
	bluezProfileManager  = "org.bluez.ProfileManager1"
	bluezManagerPath     = dbus.ObjectPath("/org/bluez")
	dbusObjectManager    = "org.freedesktop.DBus.ObjectManager"
	dbusProperties       = "org.freedesktop.DBus.Properties"
	dbusIntrospectable   = "org.freedesktop.DBus.Introspectable"
	dbusPropertiesChange = dbusProperties + ".PropertiesChanged"
	dbusInterfacesAdded  = dbusObjectManager + ".InterfacesAdded"
)

// eventQueueSize is the number of events that can wait for the handler.
const eventQueueSize = 64

// Stack is a stack.Stack backed by the BlueZ daemon.
//
// Events are delivered to the handler one at a time from a single goroutine,
// in the order they were produced.
type Stack struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	bus     *dbus.Conn
	adapter dbus.ObjectPath
	agent   *agent
	server  *profile
	client  *profile

	session atomic.Pointer[session]
	handler atomic.Pointer[stack.Handler]

	devices   *xsync.MapOf[dbus.ObjectPath, deviceInfo]
	discovery discovery

	links      *xsync.MapOf[stack.Handle, *link]
	nextHandle atomic.Uint32
}

// session lives from Enable to Disable.
type session struct {
	events chan stack.Event
	done   chan struct{}
}

// New returns a new BlueZ stack.
func New(cfg Config) *Stack {
	cfg = cfg.withDefaults()

	return &Stack{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("stack", "bluez")),
		devices: xsync.NewMapOf[dbus.ObjectPath, deviceInfo](),
		links:   xsync.NewMapOf[stack.Handle, *link](),
	}
}

var _ stack.Stack = (*Stack)(nil)

// Enable connects to the system bus and powers on the adapter.
func (s *Stack) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus != nil {
		return nil
	}

	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return wrapError(err, "start-systembus", "Cannot initialize system DBus")
	}

	adapter, err := findAdapter(bus, s.cfg.Adapter)
	if err != nil {
		bus.Close()
		return err
	}

	if err := setProperty(bus, adapter, bluezAdapterIface, "Powered", true); err != nil {
		bus.Close()
		return wrapError(err, "adapter-setpowered-state", "Cannot power on the adapter", "adapter", adapterName(adapter))
	}

	sess := &session{
		events: make(chan stack.Event, eventQueueSize),
		done:   make(chan struct{}),
	}

	s.bus = bus
	s.adapter = adapter
	s.session.Store(sess)

	go s.dispatch(sess)
	go s.watchSignals(bus, sess.done)

	s.log.Info("Adapter enabled", zap.String("adapter", adapterName(adapter)))

	return nil
}

// Disable closes every connection and disconnects from the system bus.
func (s *Stack) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus == nil {
		return ErrNotEnabled
	}

	s.stopDiscoveryTimer()
	s.closeLinks()

	if sess := s.session.Swap(nil); sess != nil {
		close(sess.done)
	}
	err := s.bus.Close()

	s.bus = nil
	s.agent, s.server, s.client = nil, nil, nil

	if err != nil {
		return wrapError(err, "stop-systembus", "Error while closing system bus")
	}

	return nil
}

// RegisterHandler sets the receiver of all events.
func (s *Stack) RegisterHandler(h stack.Handler) error {
	s.handler.Store(&h)

	return nil
}

// InitSPP registers the pairing agent.
func (s *Stack) InitSPP() error {
	bus, adapter, err := s.conn()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.agent == nil {
		a := newAgent(s, bus, adapter)
		if err := a.setup(); err != nil {
			s.mu.Unlock()
			return wrapError(err, "agent-initialize", "Error while initializing Bluez agent")
		}

		s.agent = a
	}
	s.mu.Unlock()

	s.emit(stack.SPPInit{Status: stack.StatusSuccess})

	return nil
}

// DeinitSPP closes every connection, and unregisters the profiles and the agent.
func (s *Stack) DeinitSPP() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus == nil {
		return ErrNotEnabled
	}

	s.closeLinks()

	var first error
	for _, p := range []*profile{s.server, s.client} {
		if p == nil {
			continue
		}

		if err := p.unregister(); err != nil && first == nil {
			first = wrapError(err, "profile-unregister", "Cannot unregister the SPP profile")
		}
	}
	s.server, s.client = nil, nil

	if s.agent != nil {
		if err := s.agent.remove(); err != nil && first == nil {
			first = wrapError(err, "agent-remove", "Cannot unregister the Bluez agent")
		}
		s.agent = nil
	}

	return first
}

// SetDeviceName sets the alias of the adapter.
func (s *Stack) SetDeviceName(name string) error {
	bus, adapter, err := s.conn()
	if err != nil {
		return err
	}

	if err := setProperty(bus, adapter, bluezAdapterIface, "Alias", name); err != nil {
		return wrapError(err, "adapter-set-alias", "Cannot set the adapter name", "adapter", adapterName(adapter))
	}

	return nil
}

// SetScanMode sets whether the adapter is discoverable and pairable.
// BlueZ keeps a powered adapter connectable, so only discoverability is
// changed.
func (s *Stack) SetScanMode(mode stack.ScanMode) error {
	bus, adapter, err := s.conn()
	if err != nil {
		return err
	}

	props := []struct {
		name  string
		value any
	}{
		{"DiscoverableTimeout", uint32(0)},
		{"Pairable", mode.Discoverable},
		{"Discoverable", mode.Discoverable},
	}

	for _, p := range props {
		if err := setProperty(bus, adapter, bluezAdapterIface, p.name, p.value); err != nil {
			return wrapError(err, "adapter-set-scanmode", "Cannot set the adapter scan mode",
				"adapter", adapterName(adapter),
				"property", p.name,
			)
		}
	}

	return nil
}

// SetFixedPin sets the PIN that the agent answers every PIN request with.
func (s *Stack) SetFixedPin(pin []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agent == nil {
		return ErrNotEnabled
	}

	s.agent.fixedPin.Store(string(pin))

	return nil
}

// PinReply answers a pending PIN request of the agent.
func (s *Stack) PinReply(address stack.MacAddress, accept bool, pin []byte) error {
	s.mu.Lock()
	a := s.agent
	s.mu.Unlock()

	if a == nil {
		return ErrNotEnabled
	}

	return a.reply(address, accept, pin)
}

// conn returns the bus and the adapter path if the stack is enabled.
func (s *Stack) conn() (*dbus.Conn, dbus.ObjectPath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus == nil {
		return nil, "", ErrNotEnabled
	}

	return s.bus, s.adapter, nil
}

// emit queues an event for the handler. It waits if the queue is full,
// and drops the event once the stack is disabled.
func (s *Stack) emit(ev stack.Event) {
	s.log.Debug("Emitting event", zap.Stringer("event", ev.Kind()))

	sess := s.session.Load()
	if sess == nil {
		return
	}

	select {
	case sess.events <- ev:
	case <-sess.done:
	}
}

func (s *Stack) dispatch(sess *session) {
	for {
		select {
		case <-sess.done:
			return

		case ev := <-sess.events:
			if h := s.handler.Load(); h != nil && *h != nil {
				(*h).HandleEvent(ev)
			}
		}
	}
}

func (s *Stack) closeLinks() {
	s.links.Range(func(_ stack.Handle, l *link) bool {
		l.close()
		return true
	})
}

// Adapters returns the names of the adapters known to BlueZ.
func Adapters() ([]string, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, wrapError(err, "start-systembus", "Cannot initialize system DBus")
	}
	defer bus.Close()

	objects, err := managedObjects(bus)
	if err != nil {
		return nil, err
	}

	var names []string
	for path, ifaces := range objects {
		if _, ok := ifaces[bluezAdapterIface]; ok {
			names = append(names, adapterName(path))
		}
	}
	slices.Sort(names)

	return names, nil
}

// findAdapter returns the path of the named adapter, or of the first
// adapter if name is empty.
func findAdapter(bus *dbus.Conn, name string) (dbus.ObjectPath, error) {
	objects, err := managedObjects(bus)
	if err != nil {
		return "", err
	}

	var found dbus.ObjectPath
	for path, ifaces := range objects {
		if _, ok := ifaces[bluezAdapterIface]; !ok {
			continue
		}

		if name != "" && adapterName(path) != name {
			continue
		}

		if found == "" || path < found {
			found = path
		}
	}

	if found == "" {
		return "", wrapError(ErrAdapterNotFound, "find-adapter", "No Bluetooth adapter found", "adapter", name)
	}

	return found, nil
}

func managedObjects(bus *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)

	if err := bus.Object(bluezBusName, "/").
		Call(dbusObjectManager+".GetManagedObjects", 0).
		Store(&objects); err != nil {
		return nil, wrapError(err, "get-managed-objects", "Cannot list Bluez objects")
	}

	return objects, nil
}

func setProperty(bus *dbus.Conn, path dbus.ObjectPath, iface, name string, value any) error {
	return bus.Object(bluezBusName, path).
		Call(dbusProperties+".Set", 0, iface, name, dbus.MakeVariant(value)).
		Store()
}

func getProperty(bus *dbus.Conn, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant

	err := bus.Object(bluezBusName, path).
		Call(dbusProperties+".Get", 0, iface, name).
		Store(&v)

	return v, err
}
