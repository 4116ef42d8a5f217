package console

import (
	"strings"
	"testing"

	"github.com/darkhz/btspp/spp"
	"github.com/darkhz/btspp/stack"
	"github.com/darkhz/btspp/stack/stacktest"
	"github.com/darkhz/btspp/ui/theme"
)

var peer = stack.MacAddress{0x00, 0x1a, 0x7d, 0xda, 0x71, 0x13}

func openMaster(t *testing.T) (*spp.Master, *stacktest.Stack) {
	t.Helper()

	fake := stacktest.New()
	m := spp.NewMaster(fake)

	if err := m.Init("MASTER"); err != nil {
		t.Fatal(err)
	}

	return m, fake
}

func TestStatusLine(t *testing.T) {
	m, fake := openMaster(t)
	c := New(m, Options{Role: "master"})

	line := c.statusLine()
	if !strings.HasPrefix(line, "Idle") || strings.Contains(line, peer.String()) {
		t.Errorf("statusLine() = %q", line)
	}
	if got := c.stateColor(); got != theme.ThemeStateIdle {
		t.Errorf("stateColor() = %s", got)
	}

	if err := m.Open("TARGET", "1234"); err != nil {
		t.Fatal(err)
	}
	fake.Emit(stack.DiscoveryResult{
		Address: peer,
		Properties: []stack.DeviceProperty{
			{Type: stack.PropertyEIR, Value: stack.AppendEIR(nil, stack.EIRCompleteLocalName, []byte("TARGET"))},
		},
	})
	fake.Emit(stack.ServiceDiscoveryComplete{Status: stack.StatusSuccess, Address: peer, Channels: []uint8{1}})
	fake.Emit(stack.ChannelOpen{Status: stack.StatusSuccess, Handle: 1, Address: peer})
	fake.Emit(stack.DataIndication{Handle: 1, Data: []byte("hello")})

	line = c.statusLine()
	for _, want := range []string{"Open", peer.String(), "rx 5 B"} {
		if !strings.Contains(line, want) {
			t.Errorf("statusLine() = %q, want it to contain %q", line, want)
		}
	}
	if got := c.stateColor(); got != theme.ThemeStateOpen {
		t.Errorf("stateColor() = %s", got)
	}
}

func TestPeerLine(t *testing.T) {
	m, fake := openMaster(t)
	c := New(m, Options{})

	if got := c.peerLine(); !strings.Contains(got, "Connected[") || strings.Contains(got, peer.String()) {
		t.Errorf("peerLine() without a peer = %q", got)
	}

	if err := m.Open("TARGET", "1234"); err != nil {
		t.Fatal(err)
	}
	fake.Emit(stack.DiscoveryResult{
		Address: peer,
		Properties: []stack.DeviceProperty{
			{Type: stack.PropertyEIR, Value: stack.AppendEIR(nil, stack.EIRCompleteLocalName, []byte("TARGET"))},
		},
	})

	want := c.opts.Theme.Wrap(theme.ThemePeer, "Connected to "+peer.String())
	if got := c.peerLine(); got != want {
		t.Errorf("peerLine() = %q, want %q", got, want)
	}
}

func TestFormat(t *testing.T) {
	m, _ := openMaster(t)
	c := New(m, Options{})

	if got := c.format([]byte("[red]hi")); !strings.Contains(got, "[red[]hi") {
		t.Errorf("format() = %q, want escaped text", got)
	}

	c.hexView.Store(true)
	if got := c.format([]byte("A")); !strings.Contains(got, "00000000  41") {
		t.Errorf("format() in hex view = %q", got)
	}
}

func TestDefaults(t *testing.T) {
	m, _ := openMaster(t)
	c := New(m, Options{})

	if c.opts.Theme == nil || c.opts.Keybindings == nil || c.opts.Logger == nil {
		t.Error("defaults not set")
	}
	if c.opts.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %s", c.opts.PollInterval)
	}
}
