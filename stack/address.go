package stack

import (
	"errors"
	"strings"
)

// AddressLength is the number of bytes in a Bluetooth device address.
const AddressLength = 6

// ErrInvalidAddress is returned when a Bluetooth address cannot be parsed.
var ErrInvalidAddress = errors.New("invalid Bluetooth address")

// MacAddress is a Bluetooth device address, stored most significant byte first.
type MacAddress [AddressLength]byte

// ParseMAC parses an address in the AA:BB:CC:DD:EE:FF format.
// Hyphens and underscores are accepted as separators, as used in
// BlueZ object paths.
func ParseMAC(s string) (MacAddress, error) {
	var mac MacAddress

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == '-' || r == '_'
	})
	if len(parts) != AddressLength {
		return mac, ErrInvalidAddress
	}

	for i, part := range parts {
		if len(part) != 2 {
			return mac, ErrInvalidAddress
		}

		hi, ok := fromHex(part[0])
		if !ok {
			return mac, ErrInvalidAddress
		}

		lo, ok := fromHex(part[1])
		if !ok {
			return mac, ErrInvalidAddress
		}

		mac[i] = hi<<4 | lo
	}

	return mac, nil
}

// String returns the address in the AA:BB:CC:DD:EE:FF format.
func (m MacAddress) String() string {
	const digits = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(AddressLength*3 - 1)

	for i, b := range m {
		if i > 0 {
			sb.WriteByte(':')
		}

		sb.WriteByte(digits[b>>4])
		sb.WriteByte(digits[b&0x0f])
	}

	return sb.String()
}

// IsNil reports whether the address is all zeros.
func (m MacAddress) IsNil() bool {
	return m == MacAddress{}
}

// MarshalText implements encoding.TextMarshaler.
func (m MacAddress) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MacAddress) UnmarshalText(data []byte) error {
	mac, err := ParseMAC(string(data))
	if err != nil {
		return err
	}

	*m = mac

	return nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}
