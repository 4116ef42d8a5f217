package spp

import (
	"github.com/darkhz/btspp/stack"
)

// legacyPinLength is the PIN length used when the peer does not ask for 16 digits.
const legacyPinLength = 4

// PairingResponder answers legacy pairing PIN requests with the secret
// held by a connection state. Every request gets exactly one reply.
type PairingResponder struct {
	stack stack.Stack
	conn  *ConnectionState
}

// Respond replies to req. A request that arrives before any secret is
// configured is rejected.
func (p PairingResponder) Respond(req stack.PinRequest) error {
	secret := p.conn.secret.Load()
	if secret == "" {
		return p.stack.PinReply(req.Address, false, nil)
	}

	return p.stack.PinReply(req.Address, true, pinCode(secret, req.Min16Digit))
}

// pinCode returns the secret as a 16 byte zero-padded PIN if min16 is set,
// or as a 4 byte PIN otherwise.
func pinCode(secret string, min16 bool) []byte {
	length := legacyPinLength
	if min16 {
		length = stack.MaxPinLength
	}

	pin := make([]byte, length)
	copy(pin, secret)

	return pin
}

func validateSecret(secret string) error {
	if len(secret) == 0 || len(secret) > stack.MaxPinLength {
		return ErrInvalidSecret
	}

	return nil
}

func validateName(name string) error {
	if len(name) == 0 || len(name) > stack.MaxNameLength {
		return ErrInvalidName
	}

	return nil
}
