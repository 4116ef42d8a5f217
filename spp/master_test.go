package spp

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/darkhz/btspp/stack"
	"github.com/darkhz/btspp/stack/stacktest"
)

var (
	peerAddress  = stack.MacAddress{0x00, 0x1a, 0x7d, 0xda, 0x71, 0x13}
	otherAddress = stack.MacAddress{0x00, 0x1a, 0x7d, 0xda, 0x71, 0x14}
)

const peerHandle stack.Handle = 0x81

func discovered(address stack.MacAddress, name string) stack.DiscoveryResult {
	return stack.DiscoveryResult{
		Address: address,
		Properties: []stack.DeviceProperty{
			{Type: stack.PropertyRSSI, Value: []byte{0xc4}},
			{Type: stack.PropertyEIR, Value: stack.AppendEIR(nil, stack.EIRCompleteLocalName, []byte(name))},
		},
	}
}

func newMaster(t *testing.T, name string) (*Master, *stacktest.Stack) {
	t.Helper()

	fake := stacktest.New()
	m := NewMaster(fake)

	if err := m.Init(name); err != nil {
		t.Fatalf("Init(%q) error = %v", name, err)
	}

	return m, fake
}

// connectMaster drives the master through discovery up to an open channel.
func connectMaster(t *testing.T, m *Master, fake *stacktest.Stack) {
	t.Helper()

	if err := m.Open("TARGET", "1234"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	fake.Emit(discovered(peerAddress, "TARGET"))
	fake.Emit(stack.ServiceDiscoveryComplete{
		Status:   stack.StatusSuccess,
		Address:  peerAddress,
		Channels: []uint8{3, 5},
	})
	fake.Emit(stack.ChannelOpen{Status: stack.StatusSuccess, Handle: peerHandle, Address: peerAddress})

	if !m.Ready() {
		t.Fatalf("Ready() = false after the channel opened, state %s", m.State())
	}
}

func TestMasterBringUp(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	want := []string{
		stacktest.CmdEnable,
		stacktest.CmdRegisterHandler,
		stacktest.CmdInitSPP,
		stacktest.CmdSetDeviceName,
		stacktest.CmdSetScanMode,
	}
	if got := fake.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("bring-up commands = %v, want %v", got, want)
	}

	if !m.Up() || m.Ready() {
		t.Errorf("Up() = %v, Ready() = %v; want true, false", m.Up(), m.Ready())
	}

	if err := m.Init("MASTER"); !errors.Is(err, ErrAlreadyUp) {
		t.Errorf("second Init() error = %v, want %v", err, ErrAlreadyUp)
	}
}

func TestMasterBringUpFailFast(t *testing.T) {
	fake := stacktest.New()
	fake.FailOn(stacktest.CmdInitSPP)

	m := NewMaster(fake)
	err := m.Init("MASTER")
	if !errors.Is(err, stacktest.ErrInjected) {
		t.Fatalf("Init() error = %v, want %v", err, stacktest.ErrInjected)
	}

	if m.Up() {
		t.Error("Up() = true after a failed bring-up")
	}

	if n := fake.Count(stacktest.CmdSetDeviceName); n != 0 {
		t.Errorf("SetDeviceName called %d times after InitSPP failed", n)
	}

	fake.Recover(stacktest.CmdInitSPP)
	if err := m.Init("MASTER"); err != nil {
		t.Errorf("Init() after recovery error = %v", err)
	}
}

func TestMasterInvalidInput(t *testing.T) {
	m := NewMaster(stacktest.New())

	if err := m.Init(""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Init(\"\") error = %v, want %v", err, ErrInvalidName)
	}

	if err := m.Open("TARGET", "1234"); !errors.Is(err, ErrNotUp) {
		t.Errorf("Open() before Init error = %v, want %v", err, ErrNotUp)
	}

	if err := m.Init("MASTER"); err != nil {
		t.Fatal(err)
	}

	if err := m.Open("TARGET", ""); !errors.Is(err, ErrInvalidSecret) {
		t.Errorf("Open() with an empty secret error = %v, want %v", err, ErrInvalidSecret)
	}

	if err := m.Open("TARGET", "12345678901234567"); !errors.Is(err, ErrInvalidSecret) {
		t.Errorf("Open() with a 17 byte secret error = %v, want %v", err, ErrInvalidSecret)
	}
}

func TestMasterDiscoveryMatch(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	if err := m.Open("TARGET", "1234"); err != nil {
		t.Fatal(err)
	}

	cmd, ok := fake.Last(stacktest.CmdStartDiscovery)
	if !ok {
		t.Fatal("Open() did not start discovery")
	}
	if inquiry := cmd.Args[0].(stack.Inquiry); inquiry != stack.DefaultInquiry() {
		t.Errorf("inquiry = %+v, want %+v", inquiry, stack.DefaultInquiry())
	}
	if m.State() != DiscoveryScanning {
		t.Fatalf("State() = %s, want %s", m.State(), DiscoveryScanning)
	}

	fake.Emit(discovered(otherAddress, "OTHER"))
	if n := fake.Count(stacktest.CmdStartServiceDiscovery); n != 0 {
		t.Errorf("OTHER triggered %d service discoveries", n)
	}
	if n := fake.Count(stacktest.CmdCancelDiscovery); n != 0 {
		t.Errorf("OTHER triggered %d discovery cancels", n)
	}

	fake.Emit(discovered(peerAddress, "TARGET"))
	fake.Emit(discovered(otherAddress, "TARGET"))

	if n := fake.Count(stacktest.CmdStartServiceDiscovery); n != 1 {
		t.Errorf("StartServiceDiscovery called %d times, want 1", n)
	}
	if n := fake.Count(stacktest.CmdCancelDiscovery); n != 1 {
		t.Errorf("CancelDiscovery called %d times, want 1", n)
	}

	cmd, _ = fake.Last(stacktest.CmdStartServiceDiscovery)
	if addr := cmd.Args[0].(stack.MacAddress); addr != peerAddress {
		t.Errorf("service discovery address = %s, want %s", addr, peerAddress)
	}

	if peer, ok := m.Connection().Peer(); !ok || peer != peerAddress {
		t.Errorf("Peer() = %s, %v; want %s, true", peer, ok, peerAddress)
	}
	if m.State() != DiscoveryScanMatchFound {
		t.Errorf("State() = %s, want %s", m.State(), DiscoveryScanMatchFound)
	}
}

func TestMasterNameMatchIsExact(t *testing.T) {
	tests := []string{"TARGE", "TARGET2", "target", ""}

	for _, name := range tests {
		m, fake := newMaster(t, "MASTER")
		if err := m.Open("TARGET", "1234"); err != nil {
			t.Fatal(err)
		}

		fake.Emit(discovered(otherAddress, name))
		if n := fake.Count(stacktest.CmdStartServiceDiscovery); n != 0 {
			t.Errorf("name %q matched TARGET", name)
		}
	}
}

func TestMasterShortNameMatch(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	if err := m.Open("TGT", "1234"); err != nil {
		t.Fatal(err)
	}

	fake.Emit(stack.DiscoveryResult{
		Address: peerAddress,
		Properties: []stack.DeviceProperty{
			{Type: stack.PropertyEIR, Value: stack.AppendEIR(nil, stack.EIRShortLocalName, []byte("TGT"))},
		},
	})

	if n := fake.Count(stacktest.CmdStartServiceDiscovery); n != 1 {
		t.Errorf("StartServiceDiscovery called %d times, want 1", n)
	}
}

func TestMasterConnect(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	connectMaster(t, m, fake)

	cmd, ok := fake.Last(stacktest.CmdConnect)
	if !ok {
		t.Fatal("Connect was not called")
	}

	want := []any{stack.SecurityAuthenticate, stack.RoleMaster, uint8(3), peerAddress}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("Connect args = %v, want %v", cmd.Args, want)
	}

	conn := m.Connection()
	if conn.ConnHandle() != peerHandle || conn.WriteHandle() != peerHandle {
		t.Errorf("handles = %d, %d; want %d", conn.ConnHandle(), conn.WriteHandle(), peerHandle)
	}
	if m.State() != DiscoveryOpen {
		t.Errorf("State() = %s, want %s", m.State(), DiscoveryOpen)
	}

	if err := m.Open("TARGET", "1234"); !errors.Is(err, ErrChannelOpen) {
		t.Errorf("Open() while open error = %v, want %v", err, ErrChannelOpen)
	}
}

func TestMasterServiceDiscoveryFailure(t *testing.T) {
	tests := []stack.ServiceDiscoveryComplete{
		{Status: stack.StatusFailure, Address: peerAddress},
		{Status: stack.StatusSuccess, Address: peerAddress},
	}

	for _, ev := range tests {
		m, fake := newMaster(t, "MASTER")
		if err := m.Open("TARGET", "1234"); err != nil {
			t.Fatal(err)
		}

		fake.Emit(discovered(peerAddress, "TARGET"))
		fake.Emit(ev)

		if n := fake.Count(stacktest.CmdConnect); n != 0 {
			t.Errorf("%+v: Connect called %d times", ev, n)
		}
		if m.State() != DiscoveryIdle {
			t.Errorf("%+v: State() = %s, want %s", ev, m.State(), DiscoveryIdle)
		}
	}
}

func TestMasterConnectFailure(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	fake.FailOn(stacktest.CmdConnect)

	if err := m.Open("TARGET", "1234"); err != nil {
		t.Fatal(err)
	}

	fake.Emit(discovered(peerAddress, "TARGET"))
	fake.Emit(stack.ServiceDiscoveryComplete{Status: stack.StatusSuccess, Address: peerAddress, Channels: []uint8{1}})

	if m.State() != DiscoveryIdle {
		t.Errorf("State() = %s, want %s", m.State(), DiscoveryIdle)
	}
}

func TestMasterStartDiscoveryFailure(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	fake.FailOn(stacktest.CmdStartDiscovery)

	if err := m.Open("TARGET", "1234"); !errors.Is(err, stacktest.ErrInjected) {
		t.Errorf("Open() error = %v, want %v", err, stacktest.ErrInjected)
	}
	if m.State() != DiscoveryIdle {
		t.Errorf("State() = %s, want %s", m.State(), DiscoveryIdle)
	}
}

func TestMasterScanWithoutMatchStaysScanning(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	if err := m.Open("TARGET", "1234"); err != nil {
		t.Fatal(err)
	}

	fake.Emit(stack.DiscoveryStateChanged{Started: true})
	fake.Emit(discovered(otherAddress, "OTHER"))
	fake.Emit(stack.DiscoveryStateChanged{Started: false})

	if m.State() != DiscoveryScanning {
		t.Errorf("State() = %s, want %s", m.State(), DiscoveryScanning)
	}

	if err := m.Open("TARGET", "1234"); err != nil {
		t.Errorf("Open() while scanning error = %v", err)
	}
	if n := fake.Count(stacktest.CmdStartDiscovery); n != 2 {
		t.Errorf("StartDiscovery called %d times, want 2", n)
	}
}

func TestMasterSendReceive(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	if err := m.SendText("hi"); !errors.Is(err, ErrNotReady) {
		t.Errorf("SendText() before open error = %v, want %v", err, ErrNotReady)
	}

	connectMaster(t, m, fake)

	if err := m.SendText("hello"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	cmd, _ := fake.Last(stacktest.CmdWrite)
	if h := cmd.Args[0].(stack.Handle); h != peerHandle {
		t.Errorf("write handle = %d, want %d", h, peerHandle)
	}
	if data := cmd.Args[1].([]byte); string(data) != "hello" {
		t.Errorf("write data = %q, want %q", data, "hello")
	}

	fake.Emit(stack.DataIndication{Handle: peerHandle + 1, Data: []byte("world")})
	if n, err := m.Available(); err != nil || n != 5 {
		t.Errorf("Available() = %d, %v; want 5, nil", n, err)
	}

	if s, err := m.ReceiveText(3); err != nil || s != "wor" {
		t.Errorf("ReceiveText(3) = %q, %v; want %q, nil", s, err, "wor")
	}
	if b, err := m.ReceiveBinary(10); err != nil || string(b) != "ld" {
		t.Errorf("ReceiveBinary(10) = %q, %v; want %q, nil", b, err, "ld")
	}
	if _, err := m.ReceiveText(1); !errors.Is(err, ErrNoData) {
		t.Errorf("ReceiveText() on empty pipe error = %v, want %v", err, ErrNoData)
	}
	if _, err := m.ReceiveText(0); !errors.Is(err, ErrNoData) {
		t.Errorf("ReceiveText(0) error = %v, want %v", err, ErrNoData)
	}

	if err := m.SendBinary([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	cmd, _ = fake.Last(stacktest.CmdWrite)
	if h := cmd.Args[0].(stack.Handle); h != peerHandle+1 {
		t.Errorf("write handle after data = %d, want %d", h, peerHandle+1)
	}

	if got := m.Stats(); got.BytesReceived != 5 || got.PayloadsWritten != 2 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestMasterSendTooLarge(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	connectMaster(t, m, fake)

	if err := m.SendBinary(make([]byte, stack.MaxPayload)); err != nil {
		t.Errorf("SendBinary(MaxPayload) error = %v", err)
	}

	if err := m.SendBinary(make([]byte, stack.MaxPayload+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("SendBinary(MaxPayload+1) error = %v, want %v", err, ErrPayloadTooLarge)
	}

	if n := fake.Count(stacktest.CmdWrite); n != 1 {
		t.Errorf("Write called %d times, want 1", n)
	}
	if got := m.Stats().PayloadsRejected; got != 1 {
		t.Errorf("PayloadsRejected = %d, want 1", got)
	}
}

func TestMasterWriteSplitsPayloads(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	if _, err := m.Write([]byte("x")); !errors.Is(err, ErrNotReady) {
		t.Errorf("Write() before open error = %v, want %v", err, ErrNotReady)
	}

	connectMaster(t, m, fake)

	data := bytes.Repeat([]byte{0x55}, 2*stack.MaxPayload+10)
	n, err := m.Write(data)
	if err != nil || n != len(data) {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	var sizes []int
	for _, cmd := range fake.Commands() {
		if cmd.Name == stacktest.CmdWrite {
			sizes = append(sizes, len(cmd.Args[1].([]byte)))
		}
	}
	if want := []int{stack.MaxPayload, stack.MaxPayload, 10}; !reflect.DeepEqual(sizes, want) {
		t.Errorf("payload sizes = %v, want %v", sizes, want)
	}

	fake.FailOn(stacktest.CmdWrite)
	if n, err := m.Write(data); err == nil || n != 0 {
		t.Errorf("Write() with failing stack = %d, %v", n, err)
	}
}

func TestMasterStateTitle(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	if got := m.StateTitle(); got != "Idle" {
		t.Errorf("StateTitle() = %q", got)
	}

	connectMaster(t, m, fake)
	if got := m.StateTitle(); got != "Open" {
		t.Errorf("StateTitle() = %q", got)
	}
}

func TestMasterDataBeforeOpenIsIllegal(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	sub := m.Notifier().Subscribe(TopicIllegal)
	defer sub.Unsubscribe()

	fake.Emit(stack.DataIndication{Handle: peerHandle, Data: []byte("early")})

	if n, _ := m.Available(); n != 0 {
		t.Errorf("Available() = %d after illegal data, want 0", n)
	}
	if got := m.Stats().IllegalTransitions; got != 1 {
		t.Errorf("IllegalTransitions = %d, want 1", got)
	}

	select {
	case note := <-sub.C:
		if note.Event != stack.KindDataIndication || note.State != DiscoveryIdle.String() {
			t.Errorf("notification = %+v", note)
		}

	case <-time.After(time.Second):
		t.Error("no illegal transition notification")
	}
}

func TestMasterPipeOverflow(t *testing.T) {
	fake := stacktest.New()
	m := NewMaster(fake, WithPipeSize(8))
	if err := m.Init("MASTER"); err != nil {
		t.Fatal(err)
	}
	connectMaster(t, m, fake)

	fake.Emit(stack.DataIndication{Handle: peerHandle, Data: []byte("0123456789")})

	got, err := m.ReceiveBinary(100)
	if err != nil || !bytes.Equal(got, []byte("01234567")) {
		t.Errorf("ReceiveBinary() = %q, %v; want %q, nil", got, err, "01234567")
	}

	if stats := m.Stats(); stats.BytesReceived != 8 || stats.BytesDropped != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestMasterPinReply(t *testing.T) {
	tests := []struct {
		min16 bool
		want  []byte
	}{
		{false, []byte("1234")},
		{true, append([]byte("1234"), make([]byte, 12)...)},
	}

	for _, tt := range tests {
		m, fake := newMaster(t, "MASTER")
		if err := m.Open("TARGET", "1234"); err != nil {
			t.Fatal(err)
		}

		fake.Emit(stack.PinRequest{Address: peerAddress, Min16Digit: tt.min16})

		cmd, ok := fake.Last(stacktest.CmdPinReply)
		if !ok {
			t.Fatalf("min16=%v: no PIN reply", tt.min16)
		}

		want := []any{peerAddress, true, tt.want}
		if !reflect.DeepEqual(cmd.Args, want) {
			t.Errorf("min16=%v: PinReply args = %v, want %v", tt.min16, cmd.Args, want)
		}
	}
}

func TestMasterPinReplyWithoutSecret(t *testing.T) {
	_, fake := newMaster(t, "MASTER")

	fake.Emit(stack.PinRequest{Address: peerAddress})

	cmd, ok := fake.Last(stacktest.CmdPinReply)
	if !ok || cmd.Args[1].(bool) {
		t.Errorf("PinReply = %v, %v; want a rejection", cmd, ok)
	}
}

func TestMasterAuthComplete(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	sub := m.Notifier().Subscribe(TopicAuth)
	defer sub.Unsubscribe()

	fake.Emit(stack.AuthComplete{Status: stack.StatusSuccess, Address: peerAddress, Name: "TARGET"})
	if !m.Connection().Authenticated() {
		t.Error("Authenticated() = false after a successful pairing")
	}

	select {
	case note := <-sub.C:
		if note.Address != peerAddress || note.Status != stack.StatusSuccess {
			t.Errorf("notification = %+v", note)
		}

	case <-time.After(time.Second):
		t.Error("no authentication notification")
	}

	fake.Emit(stack.AuthComplete{Status: stack.StatusAuthFailure, Address: peerAddress})
	if m.Connection().Authenticated() {
		t.Error("Authenticated() = true after a failed pairing")
	}

	if m.State() != DiscoveryIdle {
		t.Errorf("State() = %s after a failed pairing, want %s", m.State(), DiscoveryIdle)
	}
}

func TestMasterCongestion(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	connectMaster(t, m, fake)

	fake.Emit(stack.Congestion{Status: stack.StatusSuccess, Handle: peerHandle, Congested: true})
	if !m.Connection().Congested() {
		t.Error("Congested() = false after a congestion event")
	}

	fake.Emit(stack.WriteComplete{Status: stack.StatusSuccess, Handle: peerHandle, Length: 4})
	if m.Connection().Congested() {
		t.Error("Congested() = true after an uncongested write")
	}

	if err := m.SendText("still sending"); err != nil {
		t.Errorf("SendText() while congested error = %v", err)
	}
}

func TestMasterRemoteClose(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	connectMaster(t, m, fake)

	fake.Emit(stack.ChannelClose{Status: stack.StatusSuccess, Handle: peerHandle + 7})
	if !m.Ready() {
		t.Fatal("a close event for another handle closed the channel")
	}

	fake.Emit(stack.ChannelClose{Status: stack.StatusSuccess, Handle: peerHandle})

	if m.Ready() {
		t.Error("Ready() = true after the channel closed")
	}
	if m.State() != DiscoveryIdle {
		t.Errorf("State() = %s, want %s", m.State(), DiscoveryIdle)
	}
	if h := m.Connection().ConnHandle(); h.IsValid() {
		t.Errorf("ConnHandle() = %d after close", h)
	}
	if n := fake.Count(stacktest.CmdStartDiscovery); n != 1 {
		t.Errorf("StartDiscovery called %d times, want no reconnect", n)
	}
}

func TestMasterClose(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	if err := m.Close(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Close() before open error = %v, want %v", err, ErrNotReady)
	}

	connectMaster(t, m, fake)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	cmd, _ := fake.Last(stacktest.CmdDisconnect)
	if h := cmd.Args[0].(stack.Handle); h != peerHandle {
		t.Errorf("Disconnect handle = %d, want %d", h, peerHandle)
	}

	if m.Ready() || m.State() != DiscoveryIdle {
		t.Errorf("Ready() = %v, State() = %s after Close", m.Ready(), m.State())
	}

	fake.Emit(stack.ChannelClose{Status: stack.StatusSuccess, Handle: peerHandle})
	if m.State() != DiscoveryIdle {
		t.Errorf("State() = %s after the close confirmation", m.State())
	}
}

func TestMasterReopenIgnoresLateClose(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	connectMaster(t, m, fake)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Open("TARGET", "1234"); err != nil {
		t.Fatalf("Open() after Close error = %v", err)
	}

	fake.Emit(discovered(peerAddress, "TARGET"))
	fake.Emit(stack.ChannelClose{Status: stack.StatusSuccess, Handle: peerHandle})

	if m.State() != DiscoveryScanMatchFound {
		t.Fatalf("State() = %s after the close of the previous channel, want %s", m.State(), DiscoveryScanMatchFound)
	}

	fake.Reset()
	fake.Emit(stack.ServiceDiscoveryComplete{
		Status:   stack.StatusSuccess,
		Address:  peerAddress,
		Channels: []uint8{3},
	})
	if n := fake.Count(stacktest.CmdConnect); n != 1 {
		t.Fatalf("Connect called %d times, want 1", n)
	}

	fake.Emit(stack.ChannelOpen{Status: stack.StatusSuccess, Handle: peerHandle, Address: peerAddress})
	if !m.Ready() {
		t.Fatalf("Ready() = false after reconnecting, state %s", m.State())
	}

	// A close that was not requested locally still closes the channel.
	fake.Emit(stack.ChannelClose{Status: stack.StatusSuccess, Handle: peerHandle})
	if m.Ready() || m.State() != DiscoveryIdle {
		t.Errorf("Ready() = %v, State() = %s after the peer closed", m.Ready(), m.State())
	}
}

func TestMasterDeinit(t *testing.T) {
	m, fake := newMaster(t, "MASTER")
	connectMaster(t, m, fake)
	fake.Reset()
	fake.FailOn(stacktest.CmdDeinitSPP)

	if err := m.Deinit(); !errors.Is(err, stacktest.ErrInjected) {
		t.Errorf("Deinit() error = %v, want %v", err, stacktest.ErrInjected)
	}

	want := []string{stacktest.CmdDeinitSPP, stacktest.CmdDisable}
	if got := fake.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("teardown commands = %v, want %v", got, want)
	}

	if m.Up() || m.Ready() {
		t.Errorf("Up() = %v, Ready() = %v after Deinit", m.Up(), m.Ready())
	}

	if err := m.Deinit(); !errors.Is(err, ErrNotUp) {
		t.Errorf("second Deinit() error = %v, want %v", err, ErrNotUp)
	}
}

func TestMasterReinitKeepsStorage(t *testing.T) {
	m, fake := newMaster(t, "A")
	connectMaster(t, m, fake)
	fake.Emit(stack.DataIndication{Handle: peerHandle, Data: []byte("unread")})

	conn := m.Connection()
	p := m.pipe.Load()

	if err := m.Deinit(); err != nil {
		t.Fatal(err)
	}
	if err := m.Init("B"); err != nil {
		t.Fatal(err)
	}

	if m.Connection() != conn || m.pipe.Load() != p {
		t.Error("Init() reallocated the connection state or the pipe")
	}
	if name := m.Connection().Name(); name != "B" {
		t.Errorf("Name() = %q, want %q", name, "B")
	}
	if m.Ready() {
		t.Error("Ready() = true after re-init")
	}
	if n, err := m.Available(); err != nil || n != 0 {
		t.Errorf("Available() = %d, %v after re-init; want 0, nil", n, err)
	}
}

func TestMasterWaitReady(t *testing.T) {
	m, fake := newMaster(t, "MASTER")

	ctx, cancel := context.WithTimeout(context.Background(), 2*readyPollInterval)
	defer cancel()

	if err := m.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() error = %v, want %v", err, context.DeadlineExceeded)
	}

	connectMaster(t, m, fake)

	if err := m.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady() on an open channel error = %v", err)
	}

	if err := NewMaster(fake).WaitReady(context.Background()); !errors.Is(err, ErrNotUp) {
		t.Errorf("WaitReady() before Init error = %v, want %v", err, ErrNotUp)
	}
}

func TestMasterStateNotifications(t *testing.T) {
	fake := stacktest.New()
	notifier := NewNotifier()
	defer notifier.Close()

	sub := notifier.Subscribe(TopicState)
	defer sub.Unsubscribe()

	m := NewMaster(fake, WithNotifier(notifier))
	if err := m.Init("MASTER"); err != nil {
		t.Fatal(err)
	}
	connectMaster(t, m, fake)

	want := []DiscoveryState{
		DiscoveryScanning,
		DiscoveryScanMatchFound,
		DiscoveryServiceDiscovery,
		DiscoveryConnecting,
		DiscoveryOpen,
	}

	for _, state := range want {
		select {
		case note := <-sub.C:
			if note.State != state.String() || note.Role != "master" {
				t.Errorf("notification = %+v, want state %s", note, state)
			}

		case <-time.After(time.Second):
			t.Fatalf("no notification for state %s", state)
		}
	}
}
