// Package session persists what a client remembers about itself between
// runs: its display name per room and whether it accepted the terms.
package session

import "context"

// Store is the durable per-client session state. A missing value is reported
// as the zero value with a nil error.
type Store interface {
	UserName(ctx context.Context, roomID string) (string, error)
	SetUserName(ctx context.Context, roomID, name string) error
	ClearUserName(ctx context.Context, roomID string) error
	TermsAccepted(ctx context.Context, version string) (bool, error)
	AcceptTerms(ctx context.Context, version string) error
}
