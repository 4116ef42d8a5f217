package spp

import (
	"go.uber.org/atomic"

	"github.com/darkhz/btspp/stack"
)

// ConnectionState is the record of the current peer and channel of a role.
//
// Its fields are written from the stack's callback context and read from
// the application, so every field is atomic.
type ConnectionState struct {
	name   atomic.String
	target atomic.String
	secret atomic.String
	peer   atomic.Pointer[stack.MacAddress]

	writeHandle atomic.Uint32
	connHandle  atomic.Uint32

	// closing is the handle of a channel disconnected locally whose close
	// event has not arrived yet.
	closing atomic.Uint32

	ready         atomic.Bool
	authenticated atomic.Bool
	congested     atomic.Bool
}

// Name returns the local device name.
func (c *ConnectionState) Name() string {
	return c.name.Load()
}

// Target returns the name of the peer the master looks for.
func (c *ConnectionState) Target() string {
	return c.target.Load()
}

// Peer returns the address of the current peer, if one is known.
func (c *ConnectionState) Peer() (stack.MacAddress, bool) {
	peer := c.peer.Load()
	if peer == nil {
		return stack.MacAddress{}, false
	}

	return *peer, true
}

// WriteHandle returns the handle that writes are addressed to.
func (c *ConnectionState) WriteHandle() stack.Handle {
	return stack.Handle(c.writeHandle.Load())
}

// ConnHandle returns the handle of the open connection.
func (c *ConnectionState) ConnHandle() stack.Handle {
	return stack.Handle(c.connHandle.Load())
}

// Ready reports whether data can be sent over the channel.
func (c *ConnectionState) Ready() bool {
	return c.ready.Load()
}

// Authenticated reports whether the last pairing attempt succeeded.
func (c *ConnectionState) Authenticated() bool {
	return c.authenticated.Load()
}

// Congested reports whether the stack last reported the channel as congested.
func (c *ConnectionState) Congested() bool {
	return c.congested.Load()
}

// reset overwrites the local fields for a new bring-up and forgets the link.
func (c *ConnectionState) reset(name, secret string) {
	c.name.Store(name)
	c.secret.Store(secret)
	c.target.Store("")
	c.peer.Store(nil)
	c.authenticated.Store(false)
	c.closing.Store(uint32(stack.NoHandle))
	c.clearLink()
}

// clearLink forgets the channel. Readiness is cleared before the handles.
func (c *ConnectionState) clearLink() {
	c.ready.Store(false)
	c.congested.Store(false)
	c.writeHandle.Store(uint32(stack.NoHandle))
	c.connHandle.Store(uint32(stack.NoHandle))
}

// openLink records an open channel. The handles are set before readiness.
func (c *ConnectionState) openLink(handle stack.Handle) {
	c.connHandle.Store(uint32(handle))
	c.writeHandle.Store(uint32(handle))
	c.ready.Store(true)
}

func (c *ConnectionState) setWriteHandle(handle stack.Handle) {
	c.writeHandle.Store(uint32(handle))
}

func (c *ConnectionState) setPeer(address stack.MacAddress) {
	c.peer.Store(&address)
}

func (c *ConnectionState) markClosing(handle stack.Handle) {
	c.closing.Store(uint32(handle))
}

// confirmClose reports whether handle belongs to a channel that was
// disconnected locally, and forgets it if so.
func (c *ConnectionState) confirmClose(handle stack.Handle) bool {
	return handle.IsValid() && c.closing.CompareAndSwap(uint32(handle), uint32(stack.NoHandle))
}
