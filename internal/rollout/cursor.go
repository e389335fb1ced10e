package rollout

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

// Anchor is the internal pagination cursor: a timestamp truncated to second
// precision paired with a thread id, used so list_threads pagination stays
// stable across inserts that land between pages.
type Anchor struct {
	Timestamp time.Time
	ThreadID  types.ThreadID
}

const (
	isoLayout    = "2006-01-02T15:04:05Z07:00"
	customLayout = "2006-01-02T15-04-05"
)

// AnchorToCursor encodes an Anchor as the opaque external cursor string.
func AnchorToCursor(a Anchor) string {
	raw := fmt.Sprintf("%s|%s", a.Timestamp.UTC().Format(isoLayout), a.ThreadID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// CursorToAnchor decodes an opaque cursor string back into an Anchor.
// Timestamps in either ISO 8601 or the custom YYYY-MM-DDTHH-MM-SS format are
// accepted on the way in, per the rollout file-naming convention.
func CursorToAnchor(cursor string) (Anchor, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Anchor{}, fmt.Errorf("rollout: invalid cursor encoding: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return Anchor{}, fmt.Errorf("rollout: malformed cursor")
	}

	ts, err := parseTimestamp(parts[0])
	if err != nil {
		return Anchor{}, fmt.Errorf("rollout: invalid cursor timestamp: %w", err)
	}
	if parts[1] == "" {
		return Anchor{}, fmt.Errorf("rollout: empty cursor thread id")
	}
	return Anchor{Timestamp: ts.Truncate(time.Second), ThreadID: types.ThreadID(parts[1])}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(customLayout, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", s)
}
