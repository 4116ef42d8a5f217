//go:build linux

package bluez

import (
	"errors"
	"testing"

	"github.com/darkhz/btspp/stack"
)

func TestAgentReply(t *testing.T) {
	a := newAgent(New(Config{}), nil, "/org/bluez/hci0")

	address, _ := stack.ParseMAC("AA:BB:CC:DD:EE:FF")
	if err := a.reply(address, true, []byte("1234")); !errors.Is(err, ErrNoPinRequest) {
		t.Fatalf("reply() without request = %v", err)
	}

	ch := make(chan pinAnswer, 1)
	a.pending.Store(address, ch)

	if err := a.reply(address, true, []byte{'1', '2', '3', '4', 0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	answer := <-ch
	if !answer.accept || answer.pin != "1234" {
		t.Errorf("answer = %+v", answer)
	}
}

func TestAgentFixedPin(t *testing.T) {
	a := newAgent(New(Config{}), nil, "/org/bluez/hci0")
	a.fixedPin.Store("0000")

	pin, err := a.RequestPinCode("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	if err != nil || pin != "0000" {
		t.Errorf("RequestPinCode() = %q, %v", pin, err)
	}

	passkey, err := a.RequestPasskey("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	if err != nil || passkey != 0 {
		t.Errorf("RequestPasskey() = %d, %v", passkey, err)
	}
}

func TestAgentAuthorizeService(t *testing.T) {
	a := newAgent(New(Config{}), nil, "/org/bluez/hci0")

	if err := a.AuthorizeService("", "00001101-0000-1000-8000-00805f9b34fb"); err != nil {
		t.Errorf("serial port service rejected: %v", err)
	}
	if err := a.AuthorizeService("", "0000110b-0000-1000-8000-00805f9b34fb"); err == nil {
		t.Error("audio sink service authorized")
	}
}
