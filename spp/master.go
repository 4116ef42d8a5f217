package spp

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/darkhz/btspp/stack"
)

// Master is the role that searches for a peer by name and connects to it.
type Master struct {
	*role[DiscoveryState]
}

// NewMaster returns a new master role which drives s.
func NewMaster(s stack.Stack, opts ...Option) *Master {
	return &Master{newRole("master", s, nextDiscoveryState, opts)}
}

// Init brings up the stack and makes the local device visible as name.
// It returns ErrAlreadyUp if the master is already up. If a bring-up step
// fails, the remaining steps are skipped and the master stays down.
func (m *Master) Init(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	return m.initialize(name, "", []step{
		{"enable-stack", "Cannot enable the Bluetooth stack", m.stack.Enable},
		{"register-handler", "Cannot register the event handler", func() error {
			return m.stack.RegisterHandler(stack.HandlerFunc(m.handleEvent))
		}},
		{"init-spp", "Cannot initialize the SPP profile", m.stack.InitSPP},
		{"set-device-name", "Cannot set the device name", func() error {
			return m.stack.SetDeviceName(name)
		}},
		{"set-scan-mode", "Cannot set the scan mode", func() error {
			return m.stack.SetScanMode(stack.ScanModeVisible)
		}},
	})
}

// Deinit tears down the stack. The connection state and the pipe are kept
// for the next Init.
func (m *Master) Deinit() error {
	return m.deinitialize()
}

// Open starts searching for a peer advertising target as its name, and
// connects to it once found, pairing with secret if asked to.
// The outcome is reported asynchronously through Ready and State.
func (m *Master) Open(target, secret string) error {
	if !m.Up() {
		return ErrNotUp
	}

	if err := validateName(target); err != nil {
		return err
	}
	if err := validateSecret(secret); err != nil {
		return err
	}

	conn := m.conn.Load()
	if conn.Ready() {
		return ErrChannelOpen
	}

	conn.target.Store(target)
	conn.secret.Store(secret)
	conn.peer.Store(nil)

	if _, ok := m.fire(triggerStart, nil); !ok {
		return ErrChannelOpen
	}

	if err := m.stack.StartDiscovery(m.opts.inquiry); err != nil {
		m.fire(triggerStop, nil)
		m.log.Error("Cannot start discovery", zap.Error(err))

		return wrapStackError(err, "start-discovery", "Cannot start device discovery")
	}

	m.log.Info("Searching for peer", zap.String("target", target))

	return nil
}

func (m *Master) handleEvent(ev stack.Event) {
	m.logEvent(ev)

	conn := m.conn.Load()
	if conn == nil {
		return
	}

	switch ev := ev.(type) {
	case stack.DiscoveryResult:
		m.onDiscoveryResult(conn, ev)

	case stack.DiscoveryStateChanged:
		if !ev.Started && m.State() == DiscoveryScanning {
			m.log.Info("Discovery stopped without a match", zap.String("target", conn.Target()))
		}

	case stack.ServiceDiscoveryComplete:
		m.onServiceDiscovery(conn, ev)

	case stack.ChannelOpen:
		m.onChannelOpen(conn, ev)

	case stack.ChannelClose:
		if conn.confirmClose(ev.Handle) {
			m.log.Debug("Close confirmed", zap.Uint32("handle", uint32(ev.Handle)))
			return
		}

		if h := conn.ConnHandle(); h.IsValid() && h != ev.Handle {
			return
		}

		conn.clearLink()
		m.fire(triggerClosed, ev)
		m.fire(triggerSettle, ev)

	case stack.DataIndication:
		if _, ok := m.fire(triggerData, ev); !ok {
			return
		}

		conn.setWriteHandle(ev.Handle)
		m.deliver(ev.Data)

	case stack.Congestion:
		if m.State() != DiscoveryOpen {
			return
		}

		conn.setWriteHandle(ev.Handle)
		m.congestion(conn, ev.Congested)

	case stack.WriteComplete:
		if m.State() != DiscoveryOpen {
			return
		}

		if ev.Status != stack.StatusSuccess {
			m.log.Warn("Write failed", zap.Stringer("status", ev.Status))
		}

		conn.setWriteHandle(ev.Handle)
		m.congestion(conn, ev.Congested)

	case stack.PinRequest:
		m.respond(ev)

	case stack.AuthComplete:
		m.authenticated(ev)
	}
}

// onDiscoveryResult checks whether a discovered device is the target.
// Only the first match of a scan is acted upon.
func (m *Master) onDiscoveryResult(conn *ConnectionState, ev stack.DiscoveryResult) {
	if m.State() != DiscoveryScanning {
		return
	}

	name, ok := ev.ResolveName()
	if !ok || !bytes.Equal(name, []byte(conn.Target())) {
		return
	}

	if _, ok := m.fire(triggerMatch, ev); !ok {
		return
	}

	conn.setPeer(ev.Address)
	m.log.Info("Found peer", zap.Stringer("address", ev.Address), zap.ByteString("name", name))

	if err := m.stack.StartServiceDiscovery(ev.Address); err != nil {
		m.log.Error("Cannot start service discovery", zap.Stringer("address", ev.Address), zap.Error(err))
		m.fire(triggerFailed, ev)
	}

	if err := m.stack.CancelDiscovery(); err != nil {
		m.log.Warn("Cannot cancel discovery", zap.Error(err))
	}
}

// onServiceDiscovery connects to the first SPP channel of the peer.
func (m *Master) onServiceDiscovery(conn *ConnectionState, ev stack.ServiceDiscoveryComplete) {
	if m.State() != DiscoveryScanMatchFound {
		return
	}

	if ev.Status != stack.StatusSuccess || len(ev.Channels) == 0 {
		m.log.Warn("No SPP service found",
			zap.Stringer("address", ev.Address),
			zap.Stringer("status", ev.Status),
		)
		m.fire(triggerFailed, ev)

		return
	}

	peer, _ := conn.Peer()

	m.fire(triggerServicesFound, ev)
	if _, ok := m.fire(triggerConnecting, ev); !ok {
		return
	}

	if err := m.stack.Connect(stack.SecurityAuthenticate, stack.RoleMaster, ev.Channels[0], peer); err != nil {
		m.log.Error("Cannot connect", zap.Stringer("address", peer), zap.Error(err))
		m.fire(triggerFailed, ev)
	}
}

func (m *Master) onChannelOpen(conn *ConnectionState, ev stack.ChannelOpen) {
	if ev.Status != stack.StatusSuccess {
		m.log.Warn("Channel open failed", zap.Stringer("status", ev.Status))
		m.fire(triggerFailed, ev)

		return
	}

	if _, ok := m.fire(triggerOpened, ev); !ok {
		return
	}

	conn.openLink(ev.Handle)
	m.log.Info("Channel open", zap.Uint32("handle", uint32(ev.Handle)))
}
