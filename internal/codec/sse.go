package codec

import (
	"bufio"
	"io"
	"strings"
)

// frame is one raw server-sent-event frame: an optional event name plus the
// joined `data:` lines, ignoring any other SSE field (id, retry, comments).
type frame struct {
	event string
	data  string
}

// frameScanner splits a byte stream on `event:`/`data:` line boundaries,
// grouping consecutive lines into frames on the blank-line terminator, the
// way every SSE producer in the pack (OpenAI-, Anthropic-, and
// gateway-compatible) delimits events.
type frameScanner struct {
	scanner *bufio.Scanner
}

func newFrameScanner(r io.Reader) *frameScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &frameScanner{scanner: s}
}

// next reads the next frame. It returns io.EOF once the underlying reader is
// exhausted with no more data buffered.
func (fs *frameScanner) next() (frame, error) {
	var f frame
	var dataLines []string
	sawAny := false

	for fs.scanner.Scan() {
		line := fs.scanner.Text()

		if line == "" {
			if sawAny {
				f.data = strings.Join(dataLines, "\n")
				return f, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment line
		}

		colon := strings.IndexByte(line, ':')
		field, value := line, ""
		if colon != -1 {
			field, value = line[:colon], line[colon+1:]
			if strings.HasPrefix(value, " ") {
				value = value[1:]
			}
		}

		switch field {
		case "event":
			f.event = value
			sawAny = true
		case "data":
			dataLines = append(dataLines, value)
			sawAny = true
		default:
			// ignore id/retry/unknown fields
		}
	}

	if err := fs.scanner.Err(); err != nil {
		return frame{}, err
	}
	if sawAny {
		f.data = strings.Join(dataLines, "\n")
		return f, nil
	}
	return frame{}, io.EOF
}
