package api

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/evallife/polychat/internal/stream"
	"github.com/sashabaranov/go-openai"
)

func (c *call) openAI(ctx context.Context) (*stream.Stream, error) {
	config := openai.DefaultConfig(c.credential)
	config.BaseURL = c.adapter.Endpoint(c.model.BaseURL, "")
	config.HTTPClient = c.client.rest.GetClient()
	client := openai.NewClientWithConfig(config)

	req := c.openAIRequest(true)
	s, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		mapped := c.mapOpenAIError(err)
		if mapped != err {
			c.logFailure(mapped)
		}
		return c.withFallback(ctx, mapped, func(ctx context.Context) (string, error) {
			resp, err := client.CreateChatCompletion(ctx, c.openAIRequest(false))
			if err != nil {
				return "", c.mapOpenAIError(err)
			}
			if len(resp.Choices) == 0 {
				return "", errors.New("empty completion")
			}
			return resp.Choices[0].Message.Content, nil
		})
	}

	src := &openAIChunks{stream: s, call: c}
	opts := append(c.opts, stream.WithCloser(s.Close))
	return stream.FromChunks[openai.ChatCompletionStreamResponse](src, openAIDelta, opts...), nil
}

func (c *call) openAIRequest(streaming bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(c.wire))
	for i, m := range c.wire {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	p := c.params(streaming)
	return openai.ChatCompletionRequest{
		Model:       c.model.ID,
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      p.Stream,
	}
}

// mapOpenAIError converts SDK errors carrying an HTTP status into typed
// errors. Transport errors are returned unchanged.
func (c *call) mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return c.adapter.MapError(apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return c.adapter.MapError(reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	return err
}

type openAIChunks struct {
	stream *openai.ChatCompletionStream
	call   *call
}

func (o *openAIChunks) Recv() (openai.ChatCompletionStreamResponse, error) {
	resp, err := o.stream.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		return resp, o.call.mapOpenAIError(err)
	}
	return resp, err
}

func openAIDelta(resp openai.ChatCompletionStreamResponse) string {
	var sb strings.Builder
	for _, choice := range resp.Choices {
		sb.WriteString(choice.Delta.Content)
	}
	return sb.String()
}
