// Package contentstore defines the content-addressed document store the
// engine anchors against. Same content always yields the same identifier,
// and stored blobs are immutable. An IPFS HTTP-API backed implementation
// is provided.
package contentstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a content identifier has no retrievable
// content, typically because it was never stored or is no longer pinned.
var ErrNotFound = errors.New("content not found")

// Store is a content-addressed blob store.
type Store interface {
	// Put stores data and returns its content identifier.
	Put(ctx context.Context, data []byte) (string, error)

	// Get retrieves the content behind cid, failing with ErrNotFound
	// when it is unavailable.
	Get(ctx context.Context, cid string) ([]byte, error)

	// Pin marks cid to be retained by the store.
	Pin(ctx context.Context, cid string) error

	// Unpin releases a previous Pin. Unpinned content may be garbage
	// collected at any time, so superseded revisions are only unpinned
	// once their replacement is anchored on chain.
	Unpin(ctx context.Context, cid string) error
}
