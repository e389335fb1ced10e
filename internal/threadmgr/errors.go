package threadmgr

import "errors"

// Sentinel errors for thread lifecycle operations, matching the teacher's
// flat sentinel-error style in internal/agent/errors.go.
var (
	// ErrUnknownThread is returned by any operation addressing a thread id
	// that is neither live in this process nor known to the state index.
	ErrUnknownThread = errors.New("threadmgr: unknown thread")

	// ErrThreadClosed is returned by NextEvent once a thread's notification
	// queue has been drained and closed by RemoveAndCloseAllThreads.
	ErrThreadClosed = errors.New("threadmgr: thread closed")
)
