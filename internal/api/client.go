// Package api is the request dispatcher: it validates a send, builds the
// provider payload, issues the call with an idle timeout and hands the raw
// response to the stream normalizer.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/provider"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

type Options struct {
	// Timeout bounds the wait for response headers and every gap between
	// stream reads.
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

type Client struct {
	rest *resty.Client
	opts Options
	log  zerolog.Logger
}

// NewRestClient returns the HTTP client shared by dispatch and validation.
// It has no overall timeout; streams are bounded by the idle watchdog.
func NewRestClient() *resty.Client {
	return resty.New().
		SetHeader("User-Agent", "polychat").
		SetRetryCount(0)
}

func NewClient(rest *resty.Client, opts Options, log zerolog.Logger) *Client {
	if rest == nil {
		rest = NewRestClient()
	}
	return &Client{
		rest: rest,
		opts: opts.withDefaults(),
		log:  log,
	}
}

// Send dispatches msgs to model's provider and returns the normalized
// stream. Pre-flight failures return before any network I/O.
func (c *Client) Send(ctx context.Context, msgs []types.Message, model types.ModelRef, credential string) (*stream.Stream, error) {
	if len(msgs) == 0 {
		return nil, chaterr.New(chaterr.KindEmptyInput, "no messages to send")
	}
	if strings.TrimSpace(credential) == "" {
		return nil, &chaterr.Error{Kind: chaterr.KindMissingCredential, Provider: string(model.Provider), Message: "no credential configured"}
	}
	if strings.TrimSpace(model.ID) == "" {
		return nil, chaterr.New(chaterr.KindModelNotFound, "model id is missing")
	}
	if model.Provider == "" {
		return nil, chaterr.New(chaterr.KindUnsupportedProvider, "provider id is missing")
	}
	adapter, err := provider.Lookup(model.Provider)
	if err != nil {
		return nil, err
	}
	if adapter.Endpoint(model.BaseURL, "") == "" {
		return nil, &chaterr.Error{Kind: chaterr.KindModelNotFound, Provider: string(model.Provider), Message: "model has no base URL"}
	}
	wire := adapter.MapMessages(msgs)
	if len(wire) == 0 {
		return nil, chaterr.New(chaterr.KindEmptyInput, "no sendable messages")
	}

	log := c.log.With().Str("provider", string(adapter.ID)).Str("model", model.ID).Logger()
	ctx, cancel := context.WithCancelCause(ctx)
	wd := newWatchdog(c.opts.Timeout, cancel)

	call := &call{
		client:     c,
		adapter:    adapter,
		model:      model,
		wire:       wire,
		credential: credential,
		log:        log,
		opts: []stream.Option{
			stream.WithContext(ctx),
			stream.OnRead(wd.reset),
			stream.WithLogger(log),
			stream.WithCloser(func() error {
				wd.stop()
				cancel(nil)
				return nil
			}),
		},
	}

	var st *stream.Stream
	switch adapter.Wire {
	case stream.WireSDK:
		st, err = call.openAI(ctx)
	default:
		st, err = call.http(ctx)
	}
	if err != nil {
		wd.stop()
		err = stream.Classify(ctx, err)
		cancel(nil)
		log.Warn().Err(err).Msg("dispatch failed")
		return nil, err
	}
	log.Debug().Str("wire", adapter.Wire.String()).Int("messages", len(wire)).Msg("stream opened")
	return st, nil
}

// Validate reports whether credential is accepted by the provider.
func (c *Client) Validate(ctx context.Context, id types.ProviderID, credential, baseURL string) bool {
	adapter, err := provider.Lookup(id)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	ok := adapter.Validate(ctx, c.rest, credential, baseURL)
	c.log.Info().Str("provider", string(id)).Bool("valid", ok).Msg("credential validated")
	return ok
}

// call carries one dispatch through the provider-specific path.
type call struct {
	client     *Client
	adapter    *provider.Adapter
	model      types.ModelRef
	wire       []provider.WireMessage
	credential string
	log        zerolog.Logger
	opts       []stream.Option
}

func (c *call) params(streaming bool) provider.Params {
	return provider.Params{
		Temperature: c.client.opts.Temperature,
		MaxTokens:   c.client.opts.MaxTokens,
		Stream:      streaming,
	}
}

func (c *call) logFailure(err error) {
	if ce, ok := err.(*chaterr.Error); ok {
		c.log.Error().Int("status", ce.Status).Str("body", ce.Body).Str("kind", ce.Kind.String()).Msg("provider request failed")
		return
	}
	c.log.Error().Err(err).Msg("provider request failed")
}

// withFallback retries a failed streaming setup once as a plain request
// when the failure is a generic provider error.
func (c *call) withFallback(ctx context.Context, streamErr error, plain func(context.Context) (string, error)) (*stream.Stream, error) {
	if chaterr.KindOf(streamErr) != chaterr.KindProviderError {
		return nil, streamErr
	}
	text, err := plain(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("non-streaming retry failed")
		return nil, streamErr
	}
	c.log.Info().Msg("streaming setup failed, using non-streaming response")
	return stream.FromText(text, c.opts...), nil
}

type watchdog struct {
	timer *time.Timer
	d     time.Duration
}

func newWatchdog(d time.Duration, cancel context.CancelCauseFunc) *watchdog {
	w := &watchdog{d: d}
	w.timer = time.AfterFunc(d, func() {
		cancel(chaterr.New(chaterr.KindTimeout, fmt.Sprintf("no response for %s", d)))
	})
	return w
}

func (w *watchdog) reset() {
	w.timer.Reset(w.d)
}

func (w *watchdog) stop() {
	w.timer.Stop()
}
