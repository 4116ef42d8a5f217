// Package stacktest provides a fake radio stack that records the commands it
// receives and lets tests inject stack events.
package stacktest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/darkhz/btspp/stack"
)

// ErrInjected is the error returned by a command that was set up to fail.
var ErrInjected = errors.New("injected stack failure")

// Command is a recorded stack command.
type Command struct {
	Name string
	Args []any
}

// String returns the command name and its arguments.
func (c Command) String() string {
	return fmt.Sprintf("%s%v", c.Name, c.Args)
}

// The names of the recorded commands.
const (
	CmdEnable                = "Enable"
	CmdDisable               = "Disable"
	CmdRegisterHandler       = "RegisterHandler"
	CmdInitSPP               = "InitSPP"
	CmdDeinitSPP             = "DeinitSPP"
	CmdSetDeviceName         = "SetDeviceName"
	CmdSetScanMode           = "SetScanMode"
	CmdSetFixedPin           = "SetFixedPin"
	CmdPinReply              = "PinReply"
	CmdStartDiscovery        = "StartDiscovery"
	CmdCancelDiscovery       = "CancelDiscovery"
	CmdStartServiceDiscovery = "StartServiceDiscovery"
	CmdConnect               = "Connect"
	CmdStartServer           = "StartServer"
	CmdDisconnect            = "Disconnect"
	CmdWrite                 = "Write"
)

// Stack is a fake stack.Stack. It is safe for concurrent use.
type Stack struct {
	mu       sync.Mutex
	commands []Command
	failing  map[string]error
	hooks    map[string]func()
	handler  stack.Handler
}

// New returns a new fake stack.
func New() *Stack {
	return &Stack{
		failing: make(map[string]error),
		hooks:   make(map[string]func()),
	}
}

// FailOn makes every subsequent call to the named command fail with ErrInjected.
func (s *Stack) FailOn(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failing[name] = ErrInjected
}

// Recover undoes FailOn for the named command.
func (s *Stack) Recover(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failing, name)
}

// On runs fn every time the named command is called, after the command is
// recorded and before it returns. fn may call Emit.
func (s *Stack) On(name string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks[name] = fn
}

// Emit delivers an event to the registered handler, in the caller's goroutine.
func (s *Stack) Emit(ev stack.Event) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h.HandleEvent(ev)
	}
}

// Commands returns all recorded commands, in order.
func (s *Stack) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Command(nil), s.commands...)
}

// Names returns the names of all recorded commands, in order.
func (s *Stack) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.commands))
	for _, c := range s.commands {
		names = append(names, c.Name)
	}

	return names
}

// Count returns how many times the named command was called.
func (s *Stack) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, c := range s.commands {
		if c.Name == name {
			n++
		}
	}

	return n
}

// Last returns the most recent call of the named command.
func (s *Stack) Last(name string) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.commands) - 1; i >= 0; i-- {
		if s.commands[i].Name == name {
			return s.commands[i], true
		}
	}

	return Command{}, false
}

// Reset forgets all recorded commands.
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = nil
}

func (s *Stack) record(name string, args ...any) error {
	s.mu.Lock()
	s.commands = append(s.commands, Command{Name: name, Args: args})
	err, hook := s.failing[name], s.hooks[name]
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	return err
}

// Enable implements stack.Stack.
func (s *Stack) Enable() error {
	return s.record(CmdEnable)
}

// Disable implements stack.Stack.
func (s *Stack) Disable() error {
	return s.record(CmdDisable)
}

// RegisterHandler implements stack.Stack.
func (s *Stack) RegisterHandler(h stack.Handler) error {
	if err := s.record(CmdRegisterHandler); err != nil {
		return err
	}

	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()

	return nil
}

// InitSPP implements stack.Stack.
func (s *Stack) InitSPP() error {
	return s.record(CmdInitSPP)
}

// DeinitSPP implements stack.Stack.
func (s *Stack) DeinitSPP() error {
	return s.record(CmdDeinitSPP)
}

// SetDeviceName implements stack.Stack.
func (s *Stack) SetDeviceName(name string) error {
	return s.record(CmdSetDeviceName, name)
}

// SetScanMode implements stack.Stack.
func (s *Stack) SetScanMode(mode stack.ScanMode) error {
	return s.record(CmdSetScanMode, mode)
}

// SetFixedPin implements stack.Stack.
func (s *Stack) SetFixedPin(pin []byte) error {
	return s.record(CmdSetFixedPin, clone(pin))
}

// PinReply implements stack.Stack.
func (s *Stack) PinReply(address stack.MacAddress, accept bool, pin []byte) error {
	return s.record(CmdPinReply, address, accept, clone(pin))
}

// StartDiscovery implements stack.Stack.
func (s *Stack) StartDiscovery(inquiry stack.Inquiry) error {
	return s.record(CmdStartDiscovery, inquiry)
}

// CancelDiscovery implements stack.Stack.
func (s *Stack) CancelDiscovery() error {
	return s.record(CmdCancelDiscovery)
}

// StartServiceDiscovery implements stack.Stack.
func (s *Stack) StartServiceDiscovery(address stack.MacAddress) error {
	return s.record(CmdStartServiceDiscovery, address)
}

// Connect implements stack.Stack.
func (s *Stack) Connect(sec stack.Security, role stack.Role, channel uint8, address stack.MacAddress) error {
	return s.record(CmdConnect, sec, role, channel, address)
}

// StartServer implements stack.Stack.
func (s *Stack) StartServer(sec stack.Security, role stack.Role, channel uint8, name string) error {
	return s.record(CmdStartServer, sec, role, channel, name)
}

// Disconnect implements stack.Stack.
func (s *Stack) Disconnect(handle stack.Handle) error {
	return s.record(CmdDisconnect, handle)
}

// Write implements stack.Stack.
func (s *Stack) Write(handle stack.Handle, data []byte) error {
	return s.record(CmdWrite, handle, clone(data))
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
