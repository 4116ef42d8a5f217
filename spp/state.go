package spp

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DiscoveryState is the state of the master role.
type DiscoveryState uint32

// The different master states.
const (
	DiscoveryIdle DiscoveryState = iota
	DiscoveryScanning
	DiscoveryScanMatchFound
	DiscoveryServiceDiscovery
	DiscoveryConnecting
	DiscoveryOpen
	DiscoveryClosed
)

// SlaveState is the state of the slave role.
type SlaveState uint32

// The different slave states.
const (
	SlaveIdle SlaveState = iota
	SlaveListening
	SlaveOpen
)

// trigger is something that moves a role from one state to another.
type trigger uint8

const (
	// triggerStart is a master open, or a slave init.
	triggerStart trigger = iota
	triggerMatch
	triggerServicesFound
	triggerConnecting
	triggerOpened
	triggerFailed
	triggerData
	triggerClosed
	// triggerSettle leaves a closed state.
	triggerSettle
	// triggerStop is a local close or deinit.
	triggerStop
)

func (s DiscoveryState) String() string {
	switch s {
	case DiscoveryIdle:
		return "idle"
	case DiscoveryScanning:
		return "scanning"
	case DiscoveryScanMatchFound:
		return "scan-match-found"
	case DiscoveryServiceDiscovery:
		return "service-discovery"
	case DiscoveryConnecting:
		return "connecting"
	case DiscoveryOpen:
		return "open"
	case DiscoveryClosed:
		return "closed"
	}

	return "unknown"
}

// Title returns the human-readable name of the state.
func (s DiscoveryState) Title() string {
	return title(s.String())
}

func (s SlaveState) String() string {
	switch s {
	case SlaveIdle:
		return "idle"
	case SlaveListening:
		return "listening"
	case SlaveOpen:
		return "open"
	}

	return "unknown"
}

// Title returns the human-readable name of the state.
func (s SlaveState) Title() string {
	return title(s.String())
}

func title(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "-", " "))
}

// nextDiscoveryState returns the state the master moves to when t happens
// in cur, and whether t is legal in cur.
func nextDiscoveryState(cur DiscoveryState, t trigger) (DiscoveryState, bool) {
	switch t {
	case triggerStart:
		return DiscoveryScanning, cur != DiscoveryOpen

	case triggerMatch:
		return DiscoveryScanMatchFound, cur == DiscoveryScanning

	case triggerServicesFound:
		return DiscoveryServiceDiscovery, cur == DiscoveryScanMatchFound

	case triggerConnecting:
		return DiscoveryConnecting, cur == DiscoveryServiceDiscovery

	case triggerOpened:
		return DiscoveryOpen, cur == DiscoveryConnecting

	case triggerFailed:
		switch cur {
		case DiscoveryScanMatchFound, DiscoveryServiceDiscovery, DiscoveryConnecting:
			return DiscoveryIdle, true
		}

	case triggerData:
		return DiscoveryOpen, cur == DiscoveryOpen

	case triggerClosed:
		switch cur {
		case DiscoveryIdle, DiscoveryScanning, DiscoveryClosed:
			return cur, true
		}

		return DiscoveryClosed, true

	case triggerSettle:
		if cur == DiscoveryClosed {
			return DiscoveryIdle, true
		}

		return cur, true

	case triggerStop:
		return DiscoveryIdle, true
	}

	return cur, false
}

// nextSlaveState returns the state the slave moves to when t happens
// in cur, and whether t is legal in cur.
func nextSlaveState(cur SlaveState, t trigger) (SlaveState, bool) {
	switch t {
	case triggerStart:
		return SlaveListening, true

	case triggerOpened, triggerData:
		return SlaveOpen, cur != SlaveIdle

	case triggerClosed:
		if cur == SlaveIdle {
			return cur, true
		}

		return SlaveListening, true

	case triggerSettle:
		return cur, true

	case triggerStop:
		return SlaveIdle, true
	}

	return cur, false
}
