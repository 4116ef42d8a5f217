package spp

import (
	"go.uber.org/zap"

	"github.com/darkhz/btspp/stack"
)

// Slave is the role that advertises the local device and accepts a single
// connection. It may only send once it has received data from the master.
type Slave struct {
	*role[SlaveState]
}

// NewSlave returns a new slave role which drives s.
func NewSlave(s stack.Stack, opts ...Option) *Slave {
	return &Slave{newRole("slave", s, nextSlaveState, opts)}
}

// Init brings up the stack, and starts an SPP server advertised as name
// which pairs using secret. It returns ErrAlreadyUp if the slave is
// already up. If a bring-up step fails, the remaining steps are skipped
// and the slave stays down.
func (s *Slave) Init(name, secret string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateSecret(secret); err != nil {
		return err
	}

	return s.initialize(name, secret, []step{
		{"enable-stack", "Cannot enable the Bluetooth stack", s.stack.Enable},
		{"register-handler", "Cannot register the event handler", func() error {
			return s.stack.RegisterHandler(stack.HandlerFunc(s.handleEvent))
		}},
		{"init-spp", "Cannot initialize the SPP profile", s.stack.InitSPP},
		{"set-pin", "Cannot set the pairing PIN", func() error {
			return s.stack.SetFixedPin([]byte(secret))
		}},
		{"set-device-name", "Cannot set the device name", func() error {
			return s.stack.SetDeviceName(name)
		}},
		{"set-scan-mode", "Cannot set the scan mode", func() error {
			return s.stack.SetScanMode(stack.ScanModeVisible)
		}},
		{"start-server", "Cannot start the SPP server", func() error {
			// The server may take a connection before StartServer returns.
			s.fire(triggerStart, nil)

			if err := s.stack.StartServer(stack.SecurityAuthenticate, stack.RoleSlave, 0, name); err != nil {
				s.fire(triggerStop, nil)
				return err
			}

			return nil
		}},
	})
}

// Deinit stops the server and tears down the stack. The connection state
// and the pipe are kept for the next Init.
func (s *Slave) Deinit() error {
	return s.deinitialize()
}

func (s *Slave) handleEvent(ev stack.Event) {
	s.logEvent(ev)

	conn := s.conn.Load()
	if conn == nil {
		return
	}

	switch ev := ev.(type) {
	case stack.ServerStarted:
		if ev.Status != stack.StatusSuccess {
			s.log.Error("SPP server failed to start", zap.Stringer("status", ev.Status))
		}

	case stack.ServerChannelOpen:
		if ev.Status != stack.StatusSuccess {
			s.log.Warn("Incoming channel failed", zap.Stringer("status", ev.Status))
			return
		}

		if _, ok := s.fire(triggerOpened, ev); !ok {
			return
		}

		conn.setPeer(ev.Address)
		s.log.Info("Peer connected", zap.Stringer("address", ev.Address))

		if err := s.stack.SetScanMode(stack.ScanModeHidden); err != nil {
			s.log.Warn("Cannot stop advertising", zap.Error(err))
		}

	case stack.DataIndication:
		if _, ok := s.fire(triggerData, ev); !ok {
			return
		}

		s.deliver(ev.Data)
		if !conn.Ready() {
			conn.openLink(ev.Handle)
			s.log.Info("Channel ready", zap.Uint32("handle", uint32(ev.Handle)))
		} else {
			conn.setWriteHandle(ev.Handle)
		}

	case stack.ChannelClose:
		if conn.confirmClose(ev.Handle) {
			// A peer may have connected since the local close.
			if s.State() != SlaveListening {
				return
			}
		} else {
			if h := conn.ConnHandle(); h.IsValid() && h != ev.Handle {
				return
			}

			conn.clearLink()
			if next, _ := s.fire(triggerClosed, ev); next != SlaveListening {
				return
			}
		}

		if err := s.stack.SetScanMode(stack.ScanModeVisible); err != nil {
			s.log.Warn("Cannot resume advertising", zap.Error(err))
		}

	case stack.Congestion:
		if conn.Ready() {
			s.congestion(conn, ev.Congested)
		}

	case stack.WriteComplete:
		if !conn.Ready() {
			return
		}

		if ev.Status != stack.StatusSuccess {
			s.log.Warn("Write failed", zap.Stringer("status", ev.Status))
		}

		s.congestion(conn, ev.Congested)

	case stack.PinRequest:
		s.respond(ev)

	case stack.AuthComplete:
		s.authenticated(ev)
	}
}
