package tokenstore

import "context"

// Unavailable stands in for a backend that could not be opened. Every Read
// and Write returns the open error, which the shipper treats as no token.
type Unavailable struct {
	err error
}

func NewUnavailable(err error) *Unavailable {
	return &Unavailable{err: err}
}

func (u *Unavailable) Read(context.Context) (string, bool, error) { return "", false, u.err }

func (u *Unavailable) Write(context.Context, string) error { return u.err }

func (u *Unavailable) Close() error { return nil }
