package spp

import (
	"go.uber.org/zap"

	"github.com/darkhz/btspp/pipe"
	"github.com/darkhz/btspp/stack"
)

// Option configures a role.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	notifier *Notifier
	pipeSize int
	inquiry  stack.Inquiry
}

func newOptions(opts []Option) options {
	o := options{
		pipeSize: pipe.DefaultCapacity,
		inquiry:  stack.DefaultInquiry(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.notifier == nil {
		o.notifier = NewNotifier()
	}

	return o
}

// WithLogger sets the logger of the role.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNotifier sets the notifier that the role publishes to.
// A role creates its own notifier if none is set.
func WithNotifier(n *Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithPipeSize sets the capacity of the receive pipe.
// It only has an effect before the first Init.
func WithPipeSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.pipeSize = size
		}
	}
}

// WithInquiry sets the parameters of the master's device discovery.
func WithInquiry(inquiry stack.Inquiry) Option {
	return func(o *options) {
		if inquiry.Length > 0 && inquiry.Length <= stack.MaxInquiryLength {
			o.inquiry = inquiry
		}
	}
}
