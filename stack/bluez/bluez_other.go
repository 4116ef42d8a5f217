//go:build !linux

package bluez

import (
	"github.com/darkhz/btspp/stack"
)

// Stack is unavailable on this platform. Every command returns
// stack.ErrNotSupported.
type Stack struct{}

// New returns a new stack.
func New(Config) *Stack {
	return &Stack{}
}

// Adapters is unavailable on this platform.
func Adapters() ([]string, error) {
	return nil, stack.ErrNotSupported
}

func (*Stack) Enable() error { return stack.ErrNotSupported }
func (*Stack) Disable() error { return stack.ErrNotSupported }
func (*Stack) RegisterHandler(stack.Handler) error { return stack.ErrNotSupported }
func (*Stack) InitSPP() error { return stack.ErrNotSupported }
func (*Stack) DeinitSPP() error { return stack.ErrNotSupported }
func (*Stack) SetDeviceName(string) error { return stack.ErrNotSupported }
func (*Stack) SetScanMode(stack.ScanMode) error { return stack.ErrNotSupported }
func (*Stack) SetFixedPin([]byte) error { return stack.ErrNotSupported }
func (*Stack) PinReply(stack.MacAddress, bool, []byte) error { return stack.ErrNotSupported }
func (*Stack) StartDiscovery(stack.Inquiry) error { return stack.ErrNotSupported }
func (*Stack) CancelDiscovery() error { return stack.ErrNotSupported }
func (*Stack) StartServiceDiscovery(stack.MacAddress) error { return stack.ErrNotSupported }
func (*Stack) Connect(stack.Security, stack.Role, uint8, stack.MacAddress) error {
	return stack.ErrNotSupported
}
func (*Stack) StartServer(stack.Security, stack.Role, uint8, string) error {
	return stack.ErrNotSupported
}
func (*Stack) Disconnect(stack.Handle) error { return stack.ErrNotSupported }
func (*Stack) Write(stack.Handle, []byte) error { return stack.ErrNotSupported }

var _ stack.Stack = (*Stack)(nil)
