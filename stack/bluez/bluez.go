// Package bluez drives the BlueZ daemon over D-Bus as an SPP radio stack.
package bluez

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/darkhz/btspp/stack"
)

// DefaultAuthTimeout is how long a PIN request waits for a reply.
const DefaultAuthTimeout = 10 * time.Second

// The different BlueZ stack errors.
var (
	ErrNotEnabled      = errors.New("stack is not enabled")
	ErrAdapterNotFound = errors.New("adapter not found")
	ErrNoConnection    = errors.New("no such connection")
	ErrCongested       = errors.New("connection is congested")
	ErrNoPinRequest    = errors.New("no pending PIN request")
)

// Config holds the settings of the BlueZ stack.
type Config struct {
	// Adapter is the name of the adapter to use, for example "hci0".
	// The first adapter found is used if it is empty.
	Adapter string

	// AuthTimeout bounds how long a PIN request waits for PinReply.
	AuthTimeout time.Duration

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return c
}

// addressFromPath returns the address of the device at a BlueZ object path,
// of the form /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func addressFromPath(path dbus.ObjectPath) (stack.MacAddress, bool) {
	s := string(path)

	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return stack.MacAddress{}, false
	}

	address, err := stack.ParseMAC(s[idx+len("/dev_"):])
	if err != nil {
		return stack.MacAddress{}, false
	}

	return address, true
}

// devicePath returns the object path of a device under an adapter.
func devicePath(adapter dbus.ObjectPath, address stack.MacAddress) dbus.ObjectPath {
	return adapter + dbus.ObjectPath("/dev_"+strings.ReplaceAll(address.String(), ":", "_"))
}

// adapterName returns the name of the adapter at path, for example "hci0".
func adapterName(path dbus.ObjectPath) string {
	s := string(path)

	return s[strings.LastIndex(s, "/")+1:]
}

func wrapError(err error, at, msg string, metadata ...string) error {
	return fault.Wrap(err,
		fctx.With(context.Background(), append([]string{"error_at", at}, metadata...)...),
		ftag.With(ftag.Internal),
		fmsg.With(msg),
	)
}
