package api

import (
	"context"
	"io"
	"strings"

	"github.com/evallife/polychat/internal/stream"
)

const errorBodyLimit = 8 << 10

func (c *call) http(ctx context.Context) (*stream.Stream, error) {
	req := c.adapter.BuildRequest(c.model.ID, c.wire, c.params(true))
	r := c.client.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetBody(req.Body).
		SetDoNotParseResponse(true)
	c.adapter.Authorize(r, c.credential)

	resp, err := r.Post(c.adapter.Endpoint(c.model.BaseURL, req.Path))
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	if body == nil {
		return nil, c.adapter.MapError(resp.StatusCode(), nil)
	}

	if !resp.IsSuccess() {
		data, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
		_ = body.Close()
		mapped := c.adapter.MapError(resp.StatusCode(), data)
		c.logFailure(mapped)
		return c.withFallback(ctx, mapped, c.plainHTTP)
	}

	// Some upstreams ignore stream=true and answer with one JSON document.
	ctype := strings.ToLower(resp.Header().Get("Content-Type"))
	if strings.Contains(ctype, "json") && !strings.Contains(ctype, "event-stream") {
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		text, err := c.adapter.ParseResponse(data)
		if err != nil {
			return nil, err
		}
		return stream.FromText(text, c.opts...), nil
	}

	opts := append(c.opts, stream.WithCloser(body.Close))
	return stream.FromSSE(body, c.adapter.ParseFrame, opts...), nil
}

func (c *call) plainHTTP(ctx context.Context) (string, error) {
	req := c.adapter.BuildRequest(c.model.ID, c.wire, c.params(false))
	r := c.client.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req.Body)
	c.adapter.Authorize(r, c.credential)

	resp, err := r.Post(c.adapter.Endpoint(c.model.BaseURL, req.Path))
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", c.adapter.MapError(resp.StatusCode(), resp.Body())
	}
	return c.adapter.ParseResponse(resp.Body())
}
