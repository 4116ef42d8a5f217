package spp

import (
	"bytes"
	"testing"
)

func TestNextDiscoveryState(t *testing.T) {
	tests := []struct {
		cur   DiscoveryState
		t     trigger
		next  DiscoveryState
		legal bool
	}{
		{DiscoveryIdle, triggerStart, DiscoveryScanning, true},
		{DiscoveryScanning, triggerStart, DiscoveryScanning, true},
		{DiscoveryOpen, triggerStart, DiscoveryOpen, false},
		{DiscoveryScanning, triggerMatch, DiscoveryScanMatchFound, true},
		{DiscoveryScanMatchFound, triggerMatch, DiscoveryScanMatchFound, false},
		{DiscoveryScanMatchFound, triggerServicesFound, DiscoveryServiceDiscovery, true},
		{DiscoveryServiceDiscovery, triggerConnecting, DiscoveryConnecting, true},
		{DiscoveryConnecting, triggerOpened, DiscoveryOpen, true},
		{DiscoveryIdle, triggerOpened, DiscoveryIdle, false},
		{DiscoveryConnecting, triggerFailed, DiscoveryIdle, true},
		{DiscoveryOpen, triggerFailed, DiscoveryOpen, false},
		{DiscoveryOpen, triggerData, DiscoveryOpen, true},
		{DiscoveryScanning, triggerData, DiscoveryScanning, false},
		{DiscoveryIdle, triggerData, DiscoveryIdle, false},
		{DiscoveryOpen, triggerClosed, DiscoveryClosed, true},
		{DiscoveryConnecting, triggerClosed, DiscoveryClosed, true},
		{DiscoveryScanning, triggerClosed, DiscoveryScanning, true},
		{DiscoveryClosed, triggerSettle, DiscoveryIdle, true},
		{DiscoveryScanning, triggerSettle, DiscoveryScanning, true},
		{DiscoveryOpen, triggerStop, DiscoveryIdle, true},
	}

	for _, tt := range tests {
		next, legal := nextDiscoveryState(tt.cur, tt.t)
		if legal != tt.legal || (legal && next != tt.next) {
			t.Errorf("nextDiscoveryState(%s, %d) = %s, %v; want %s, %v",
				tt.cur, tt.t, next, legal, tt.next, tt.legal)
		}
	}
}

func TestNextSlaveState(t *testing.T) {
	tests := []struct {
		cur   SlaveState
		t     trigger
		next  SlaveState
		legal bool
	}{
		{SlaveIdle, triggerStart, SlaveListening, true},
		{SlaveListening, triggerOpened, SlaveOpen, true},
		{SlaveListening, triggerData, SlaveOpen, true},
		{SlaveOpen, triggerData, SlaveOpen, true},
		{SlaveIdle, triggerData, SlaveIdle, false},
		{SlaveIdle, triggerOpened, SlaveIdle, false},
		{SlaveOpen, triggerClosed, SlaveListening, true},
		{SlaveIdle, triggerClosed, SlaveIdle, true},
		{SlaveOpen, triggerStop, SlaveIdle, true},
		{SlaveListening, triggerMatch, SlaveListening, false},
	}

	for _, tt := range tests {
		next, legal := nextSlaveState(tt.cur, tt.t)
		if legal != tt.legal || (legal && next != tt.next) {
			t.Errorf("nextSlaveState(%s, %d) = %s, %v; want %s, %v",
				tt.cur, tt.t, next, legal, tt.next, tt.legal)
		}
	}
}

func TestStateTitle(t *testing.T) {
	if got := DiscoveryScanMatchFound.Title(); got != "Scan Match Found" {
		t.Errorf("Title() = %q", got)
	}
	if got := SlaveListening.Title(); got != "Listening" {
		t.Errorf("Title() = %q", got)
	}
}

func TestPinCode(t *testing.T) {
	tests := []struct {
		secret string
		min16  bool
		want   []byte
	}{
		{"1234", false, []byte("1234")},
		{"123456", false, []byte("1234")},
		{"12", false, []byte{'1', '2', 0, 0}},
		{"1234", true, append([]byte("1234"), make([]byte, 12)...)},
		{"0123456789abcdef", true, []byte("0123456789abcdef")},
	}

	for _, tt := range tests {
		if got := pinCode(tt.secret, tt.min16); !bytes.Equal(got, tt.want) {
			t.Errorf("pinCode(%q, %v) = %q, want %q", tt.secret, tt.min16, got, tt.want)
		}
	}
}
