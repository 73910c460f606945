// Package context aliases the parts of the standard library context package
// that writr uses, so call sites read context.T and context.Bg.
package context

import (
	"context"
)

type (
	T = context.Context
	F = context.CancelFunc
)

var (
	Bg               = context.Background
	Cancel           = context.WithCancel
	Timeout          = context.WithTimeout
	Canceled         = context.Canceled
	DeadlineExceeded = context.DeadlineExceeded
)

// Expired reports whether c ended because its deadline passed rather than
// by cancellation.
func Expired(c T) bool { return c.Err() == DeadlineExceeded }
