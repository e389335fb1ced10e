// Package types holds the data model shared across the turn engine: thread
// identifiers, rollout items, response items, turn context, sandbox
// policies, and the other value types that cross package boundaries.
package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ThreadID is a 128-bit opaque identifier for a thread. It is never reused
// once allocated for a given workstation.
type ThreadID string

// NewThreadID allocates a fresh, globally unique ThreadID.
func NewThreadID() ThreadID {
	return ThreadID(randomHex128())
}

// String returns the canonical string form.
func (t ThreadID) String() string { return string(t) }

// Empty reports whether the id is the zero value.
func (t ThreadID) Empty() bool { return t == "" }

func randomHex128() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("types: failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(buf[:])
}

// CallID identifies a single FunctionCall/FunctionCallOutput pairing within
// a turn. It must be unique within that turn.
type CallID string

// ProcessID identifies a live process tracked by the unified exec manager.
// It is unique within a session for as long as the process (or its
// reservation) is alive.
type ProcessID uint64
