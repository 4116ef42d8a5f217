package stack

// EventKind is the tag of an event.
type EventKind byte

// The different event kinds.
const (
	KindNone EventKind = iota
	KindSPPInit
	KindServerStarted
	KindDiscoveryResult
	KindDiscoveryStateChanged
	KindServiceDiscoveryComplete
	KindChannelOpen
	KindServerChannelOpen
	KindChannelClose
	KindDataIndication
	KindCongestion
	KindWriteComplete
	KindPinRequest
	KindAuthComplete
)

var kindNames = map[EventKind]string{
	KindNone:                     "none",
	KindSPPInit:                  "spp-init",
	KindServerStarted:            "server-started",
	KindDiscoveryResult:          "discovery-result",
	KindDiscoveryStateChanged:    "discovery-state-changed",
	KindServiceDiscoveryComplete: "service-discovery-complete",
	KindChannelOpen:              "channel-open",
	KindServerChannelOpen:        "server-channel-open",
	KindChannelClose:             "channel-close",
	KindDataIndication:           "data-indication",
	KindCongestion:               "congestion",
	KindWriteComplete:            "write-complete",
	KindPinRequest:               "pin-request",
	KindAuthComplete:             "auth-complete",
}

// String returns the name of the event kind.
func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "unknown"
}

// Event is an event delivered by the stack.
type Event interface {
	Kind() EventKind
}

// SPPInit reports that the profile finished initializing.
type SPPInit struct {
	Status Status
}

// ServerStarted reports that the SPP server is listening.
type ServerStarted struct {
	Status  Status
	Channel uint8
}

// PropertyType is the type of a discovered device property.
type PropertyType byte

// The different device property types.
const (
	PropertyBDName PropertyType = iota + 1
	PropertyClassOfDevice
	PropertyRSSI
	PropertyEIR
)

// DeviceProperty is a single property of a discovered device.
type DeviceProperty struct {
	Type  PropertyType
	Value []byte
}

// DiscoveryResult reports a device found during an inquiry.
type DiscoveryResult struct {
	Address    MacAddress
	Properties []DeviceProperty
}

// DiscoveryStateChanged reports that an inquiry started or stopped.
type DiscoveryStateChanged struct {
	Started bool
}

// ServiceDiscoveryComplete reports the SPP channels found on a remote device.
type ServiceDiscoveryComplete struct {
	Status   Status
	Address  MacAddress
	Channels []uint8
}

// ChannelOpen reports that an outgoing SPP channel was opened.
type ChannelOpen struct {
	Status  Status
	Handle  Handle
	Address MacAddress
}

// ServerChannelOpen reports that a remote device opened a channel to the SPP server.
type ServerChannelOpen struct {
	Status  Status
	Handle  Handle
	Address MacAddress
}

// ChannelClose reports that an SPP channel was closed.
type ChannelClose struct {
	Status Status
	Handle Handle
}

// DataIndication carries bytes received over an SPP channel.
// Data is only valid for the duration of the callback.
type DataIndication struct {
	Handle Handle
	Data   []byte
}

// Congestion reports a change of the channel's congestion state.
type Congestion struct {
	Status    Status
	Handle    Handle
	Congested bool
}

// WriteComplete reports the completion of a Write command.
type WriteComplete struct {
	Status    Status
	Handle    Handle
	Length    int
	Congested bool
}

// PinRequest asks for a legacy pairing PIN, which is answered with PinReply.
type PinRequest struct {
	Address MacAddress

	// Min16Digit is set when the remote device requires a 16 digit PIN.
	Min16Digit bool
}

// AuthComplete reports the result of a pairing attempt.
type AuthComplete struct {
	Status  Status
	Address MacAddress
	Name    string
}

func (SPPInit) Kind() EventKind                  { return KindSPPInit }
func (ServerStarted) Kind() EventKind            { return KindServerStarted }
func (DiscoveryResult) Kind() EventKind          { return KindDiscoveryResult }
func (DiscoveryStateChanged) Kind() EventKind    { return KindDiscoveryStateChanged }
func (ServiceDiscoveryComplete) Kind() EventKind { return KindServiceDiscoveryComplete }
func (ChannelOpen) Kind() EventKind              { return KindChannelOpen }
func (ServerChannelOpen) Kind() EventKind        { return KindServerChannelOpen }
func (ChannelClose) Kind() EventKind             { return KindChannelClose }
func (DataIndication) Kind() EventKind           { return KindDataIndication }
func (Congestion) Kind() EventKind               { return KindCongestion }
func (WriteComplete) Kind() EventKind            { return KindWriteComplete }
func (PinRequest) Kind() EventKind               { return KindPinRequest }
func (AuthComplete) Kind() EventKind             { return KindAuthComplete }
