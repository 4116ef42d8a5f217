//go:build linux

package bluez

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/darkhz/btspp/stack"
)

// agent is a BlueZ pairing agent. Its exported methods are called by the
// BlueZ agent manager over the system bus.
type agent struct {
	s       *Stack
	bus     *dbus.Conn
	adapter dbus.ObjectPath
	path    dbus.ObjectPath
	timeout time.Duration

	fixedPin atomic.String
	pending  *xsync.MapOf[stack.MacAddress, chan pinAnswer]

	registered bool
}

type pinAnswer struct {
	accept bool
	pin    string
}

var errRejected = dbus.NewError("org.bluez.Error.Rejected", nil)

func newAgent(s *Stack, bus *dbus.Conn, adapter dbus.ObjectPath) *agent {
	return &agent{
		s:       s,
		bus:     bus,
		adapter: adapter,
		path:    dbus.ObjectPath("/org/btspp/agent/a" + xid.New().String()),
		timeout: s.cfg.AuthTimeout,
		pending: xsync.NewMapOf[stack.MacAddress, chan pinAnswer](),
	}
}

// setup exports the agent on the system bus and registers it as the default agent.
func (a *agent) setup() error {
	if err := a.bus.Export(a, a.path, bluezAgentIface); err != nil {
		return err
	}

	node := &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    bluezAgentIface,
				Methods: introspect.Methods(a),
			},
		},
	}

	if err := a.bus.Export(introspect.NewIntrospectable(node), a.path, dbusIntrospectable); err != nil {
		return err
	}

	if err := a.callAgentManager("RegisterAgent", a.path, "KeyboardDisplay").Store(); err != nil {
		return err
	}

	if err := a.callAgentManager("RequestDefaultAgent", a.path).Store(); err != nil {
		return err
	}

	a.registered = true

	return nil
}

// remove unregisters the agent.
func (a *agent) remove() error {
	if !a.registered {
		return nil
	}

	a.registered = false
	defer a.bus.Export(nil, a.path, bluezAgentIface)

	return a.callAgentManager("UnregisterAgent", a.path).Store()
}

// reply answers a pending PIN request from the device at address.
func (a *agent) reply(address stack.MacAddress, accept bool, pin []byte) error {
	ch, ok := a.pending.Load(address)
	if !ok {
		return ErrNoPinRequest
	}

	select {
	case ch <- pinAnswer{accept: accept, pin: strings.TrimRight(string(pin), "\x00")}:
	default:
	}

	return nil
}

// RequestPinCode returns the fixed PIN if one is set. Otherwise, a PIN request
// event is emitted and the PIN passed to PinReply is returned.
func (a *agent) RequestPinCode(devicePath dbus.ObjectPath) (string, *dbus.Error) {
	if pin := a.fixedPin.Load(); pin != "" {
		return pin, nil
	}

	address, ok := addressFromPath(devicePath)
	if !ok {
		return "", dbus.MakeFailedError(errors.New("address not found"))
	}

	ch := make(chan pinAnswer, 1)
	a.pending.Store(address, ch)
	defer a.pending.Delete(address)

	a.s.emit(stack.PinRequest{Address: address})

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case answer := <-ch:
		if !answer.accept || answer.pin == "" {
			return "", errRejected
		}

		return answer.pin, nil

	case <-timer.C:
		a.s.log.Warn("PIN request timed out", zap.Stringer("address", address))
		a.s.emit(stack.AuthComplete{Status: stack.StatusTimeout, Address: address})

		return "", dbus.NewError("org.bluez.Error.Canceled", nil)
	}
}

// RequestPasskey returns the PIN as a numeric passkey.
func (a *agent) RequestPasskey(devicePath dbus.ObjectPath) (uint32, *dbus.Error) {
	pin, derr := a.RequestPinCode(devicePath)
	if derr != nil {
		return 0, derr
	}

	passkey, err := strconv.ParseUint(pin, 10, 32)
	if err != nil {
		return 0, errRejected
	}

	return uint32(passkey), nil
}

// DisplayPinCode logs the PIN shown by the remote device.
func (a *agent) DisplayPinCode(devicePath dbus.ObjectPath, pincode string) *dbus.Error {
	a.s.log.Info("Remote device displays a PIN", zap.String("device", string(devicePath)), zap.String("pin", pincode))

	return nil
}

// DisplayPasskey logs the passkey shown by the remote device.
func (a *agent) DisplayPasskey(devicePath dbus.ObjectPath, passkey uint32, _ uint16) *dbus.Error {
	a.s.log.Info("Remote device displays a passkey", zap.String("device", string(devicePath)), zap.Uint32("passkey", passkey))

	return nil
}

// RequestConfirmation accepts a secure simple pairing passkey.
func (a *agent) RequestConfirmation(dbus.ObjectPath, uint32) *dbus.Error {
	return nil
}

// RequestAuthorization accepts a pairing request.
func (a *agent) RequestAuthorization(dbus.ObjectPath) *dbus.Error {
	return nil
}

// AuthorizeService only authorizes the serial port service.
func (a *agent) AuthorizeService(_ dbus.ObjectPath, uuid string) *dbus.Error {
	if !strings.EqualFold(uuid, stack.SerialPortUUID.String()) {
		return errRejected
	}

	return nil
}

// Cancel is called when BlueZ cancels a request.
func (a *agent) Cancel() *dbus.Error {
	return nil
}

// Release is called when the agent is unregistered.
func (a *agent) Release() *dbus.Error {
	return nil
}

func (a *agent) callAgentManager(method string, args ...any) *dbus.Call {
	return a.bus.Object(bluezBusName, bluezManagerPath).Call(bluezAgentManager+"."+method, 0, args...)
}
