// Package stack describes the Bluetooth Classic radio stack that the SPP roles
// drive. The stack is commanded through the Stack interface, and reports the
// outcome of every command asynchronously by delivering events to a Handler.
package stack

import (
	"errors"

	"github.com/google/uuid"
)

const (
	// MaxPayload is the largest payload that can be carried by a single SPP write.
	MaxPayload = 990

	// MaxNameLength is the maximum length of a Bluetooth device name.
	MaxNameLength = 248

	// MaxPinLength is the maximum length of a legacy pairing PIN.
	MaxPinLength = 16

	// DefaultInquiryLength is the default inquiry duration, in units of 1.28 seconds.
	DefaultInquiryLength = 30

	// MaxInquiryLength is the maximum inquiry duration, in units of 1.28 seconds.
	MaxInquiryLength = 48
)

// SerialPortUUID is the Serial Port Profile service class UUID.
var SerialPortUUID = uuid.MustParse("00001101-0000-1000-8000-00805f9b34fb")

// ErrNotSupported is returned by stacks that cannot run on the current platform.
var ErrNotSupported = errors.New("this functionality is not supported")

// Handle identifies an open SPP channel. The zero value is no channel.
type Handle uint32

// NoHandle is the zero handle.
const NoHandle Handle = 0

// IsValid reports whether the handle refers to a channel.
func (h Handle) IsValid() bool {
	return h != NoHandle
}

// Status is the completion status carried by events.
type Status int

// The different completion statuses.
const (
	StatusSuccess Status = iota
	StatusFailure
	StatusBusy
	StatusNoConnection
	StatusAuthFailure
	StatusTimeout
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusBusy:
		return "busy"
	case StatusNoConnection:
		return "no-connection"
	case StatusAuthFailure:
		return "auth-failure"
	case StatusTimeout:
		return "timeout"
	}

	return "failure"
}

// Security is the link security required for an SPP channel.
type Security int

// The different link security levels.
const (
	SecurityNone Security = iota
	SecurityAuthorize
	SecurityAuthenticate
	SecurityEncrypt
)

// Role is the link role taken for an SPP channel.
type Role int

// The different link roles.
const (
	RoleMaster Role = iota
	RoleSlave
)

// ScanMode describes how the device responds to pages and inquiries.
type ScanMode struct {
	Connectable  bool
	Discoverable bool
}

// The scan modes used by the SPP roles.
var (
	ScanModeVisible = ScanMode{Connectable: true, Discoverable: true}
	ScanModeHidden  = ScanMode{}
)

// InquiryMode is the kind of inquiry to perform.
type InquiryMode int

// The different inquiry modes.
const (
	InquiryGeneral InquiryMode = iota
	InquiryLimited
)

// Inquiry describes the parameters of a device discovery.
type Inquiry struct {
	Mode InquiryMode

	// Length is the inquiry duration, in units of 1.28 seconds.
	Length uint8

	// MaxResponses limits the number of results; zero is unlimited.
	MaxResponses uint8
}

// DefaultInquiry returns the inquiry parameters used by the master role.
func DefaultInquiry() Inquiry {
	return Inquiry{
		Mode:   InquiryGeneral,
		Length: DefaultInquiryLength,
	}
}

// Handler receives events from the stack.
//
// HandleEvent is invoked from the stack's callback context. Implementations
// must return promptly and must never block.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev Event) {
	f(ev)
}

// Stack is the command set of a Bluetooth Classic radio stack.
//
// Every command returns immediately. The returned error only reports whether
// the command was accepted; its outcome is delivered later as an Event.
type Stack interface {
	// Enable brings up the radio controller and host stack.
	Enable() error

	// Disable tears down the radio controller and host stack.
	Disable() error

	// RegisterHandler registers the receiver of all stack events.
	RegisterHandler(h Handler) error

	// InitSPP initializes the Serial Port Profile.
	InitSPP() error

	// DeinitSPP releases the Serial Port Profile.
	DeinitSPP() error

	// SetDeviceName sets the name advertised by the local device.
	SetDeviceName(name string) error

	// SetScanMode sets whether the local device is connectable and discoverable.
	SetScanMode(mode ScanMode) error

	// SetFixedPin configures a fixed PIN that the stack answers pairing requests with.
	SetFixedPin(pin []byte) error

	// PinReply answers a PinRequest event.
	PinReply(address MacAddress, accept bool, pin []byte) error

	// StartDiscovery starts a device inquiry.
	StartDiscovery(inquiry Inquiry) error

	// CancelDiscovery cancels an ongoing device inquiry.
	CancelDiscovery() error

	// StartServiceDiscovery looks up the SPP service channels of a remote device.
	StartServiceDiscovery(address MacAddress) error

	// Connect opens an SPP channel to a remote device.
	Connect(sec Security, role Role, channel uint8, address MacAddress) error

	// StartServer starts listening for incoming SPP channels.
	// A zero channel lets the stack choose one.
	StartServer(sec Security, role Role, channel uint8, name string) error

	// Disconnect closes an SPP channel.
	Disconnect(handle Handle) error

	// Write sends data over an SPP channel.
	// The stack must not retain data after Write returns.
	Write(handle Handle, data []byte) error
}
