package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
)

const (
	dataPrefix  = "data:"
	eventPrefix = "event:"
	doneMarker  = "[DONE]"
)

// Frame is what a provider parser extracts from one event's data payload.
type Frame struct {
	Text string
	Done bool
}

// FrameParser decodes one data payload. Returning an error that matches
// chaterr.ErrMalformedStreamFrame skips the frame; any other error ends the
// stream with that error.
type FrameParser func(event string, data []byte) (Frame, error)

// FromSSE reads newline-delimited event frames from r. The "[DONE]" payload
// and parser-reported Done frames end the stream successfully.
func FromSSE(r io.Reader, parse FrameParser, opts ...Option) *Stream {
	reader := bufio.NewReader(r)
	var (
		event    string
		finished bool
	)
	s := newStream(nil, opts...)
	s.next = func() (string, error) {
		if finished {
			return "", io.EOF
		}
		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			// The partial line is dropped; it may be a truncated frame.
			return "", readErr
		}
		if readErr != nil && line == "" {
			return "", io.EOF
		}
		if readErr != nil {
			finished = true
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			event = ""
			return "", nil
		case strings.HasPrefix(line, ":"):
			return "", nil
		case strings.HasPrefix(line, eventPrefix):
			event = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
			return "", nil
		case !strings.HasPrefix(line, dataPrefix):
			return "", nil
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if data == "" {
			return "", nil
		}
		if data == doneMarker {
			finished = true
			return "", nil
		}

		frame, err := parse(event, []byte(data))
		if err != nil {
			if errors.Is(err, chaterr.ErrMalformedStreamFrame) {
				s.log.Warn().Err(err).Str("event", event).Str("data", truncate(data, 256)).Msg("skipping malformed stream frame")
				return "", nil
			}
			return "", err
		}
		if frame.Done {
			finished = true
		}
		return frame.Text, nil
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
