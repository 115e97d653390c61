// Package stream turns provider responses into a single forward-only
// sequence of text deltas.
//
// Three wire shapes are supported:
//
//   - SSE: "data: {json}" lines read from an HTTP body (FromSSE)
//   - SDK: chunk objects received from a provider SDK stream (FromChunks)
//   - JSON: one complete response body delivered as a single delta (FromText)
//
// A Stream is consumed with Recv until it returns io.EOF (clean end) or an
// error. Deltas received before a failure are always delivered first, so a
// caller can keep the partial text.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/rs/zerolog"
)

type WireFormat int

const (
	WireSSE WireFormat = iota
	WireSDK
	WireJSON
)

func (w WireFormat) String() string {
	switch w {
	case WireSSE:
		return "sse"
	case WireSDK:
		return "sdk"
	case WireJSON:
		return "json"
	}
	return "unknown"
}

type Option func(*Stream)

// WithContext lets the stream report why the context ended (timeout,
// cancellation) instead of a bare transport error.
func WithContext(ctx context.Context) Option {
	return func(s *Stream) { s.ctx = ctx }
}

// WithCloser registers cleanup to run once when the stream is closed.
func WithCloser(fn func() error) Option {
	return func(s *Stream) { s.closers = append(s.closers, fn) }
}

// OnRead is called after every successful read from the source.
func OnRead(fn func()) Option {
	return func(s *Stream) { s.onRead = fn }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Stream) { s.log = log }
}

// Stream is not safe for concurrent use and cannot be restarted.
type Stream struct {
	next    func() (string, error)
	ctx     context.Context
	closers []func() error
	onRead  func()
	log     zerolog.Logger
	err     error
	closed  bool
}

func newStream(next func() (string, error), opts ...Option) *Stream {
	s := &Stream{next: next, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recv returns the next non-empty delta, io.EOF at a clean end, or a
// *chaterr.Error describing why the stream stopped early.
func (s *Stream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for {
		delta, err := s.next()
		if err != nil {
			s.err = Classify(s.ctx, err)
			return "", s.err
		}
		if s.onRead != nil {
			s.onRead()
		}
		if delta != "" {
			return delta, nil
		}
	}
}

// Close releases the underlying transport. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.err == nil {
		s.err = io.EOF
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Classify converts a transport error into a *chaterr.Error, preferring the
// reason ctx ended (timeout or cancellation) when it has. io.EOF passes
// through unchanged.
func Classify(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	if ctx != nil && ctx.Err() != nil {
		cause := context.Cause(ctx)
		var ce *chaterr.Error
		switch {
		case errors.As(cause, &ce):
			return ce
		case errors.Is(cause, context.DeadlineExceeded):
			return chaterr.Wrap(chaterr.KindTimeout, "request timed out", cause)
		default:
			return chaterr.Wrap(chaterr.KindCanceled, "request canceled", cause)
		}
	}
	var ce *chaterr.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return chaterr.Wrap(chaterr.KindTimeout, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return chaterr.Wrap(chaterr.KindCanceled, "request canceled", err)
	}
	return chaterr.Wrap(chaterr.KindNetworkFailure, "connection failed", err)
}

// FromText delivers text as one delta followed by end of stream.
func FromText(text string, opts ...Option) *Stream {
	sent := false
	return newStream(func() (string, error) {
		if sent {
			return "", io.EOF
		}
		sent = true
		if text == "" {
			return "", io.EOF
		}
		return text, nil
	}, opts...)
}

// ChunkSource is satisfied by SDK stream readers such as
// *openai.ChatCompletionStream.
type ChunkSource[T any] interface {
	Recv() (T, error)
}

// FromChunks extracts the text delta from every chunk of an SDK stream.
// Chunks without text are skipped.
func FromChunks[T any](src ChunkSource[T], text func(T) string, opts ...Option) *Stream {
	return newStream(func() (string, error) {
		chunk, err := src.Recv()
		if err != nil {
			return "", err
		}
		return text(chunk), nil
	}, opts...)
}

// Collect drains s and returns the concatenated text. On failure the text
// received so far is returned with the error.
func Collect(s *Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
	}
}
