package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
	"github.com/go-resty/resty/v2"
)

const anthropicVersion = "2023-06-01"

func init() {
	register(&Adapter{
		ID:      types.ProviderAnthropic,
		Name:    "Anthropic",
		BaseURL: "https://api.anthropic.com/v1",
		Wire:    stream.WireSSE,
		// No system role in the messages array.
		Roles: map[types.Role]string{
			types.RoleUser:      "user",
			types.RoleAssistant: "assistant",
			types.RoleSystem:    "user",
		},
		Models: catalog(types.ProviderAnthropic,
			[2]string{"claude-3-7-sonnet-latest", "Claude 3.7 Sonnet"},
			[2]string{"claude-3-5-sonnet-latest", "Claude 3.5 Sonnet"},
			[2]string{"claude-3-5-haiku-latest", "Claude 3.5 Haiku"},
			[2]string{"claude-3-opus-latest", "Claude 3 Opus"},
		),
		Authorize: func(req *resty.Request, credential string) {
			req.SetHeader("x-api-key", credential)
			req.SetHeader("anthropic-version", anthropicVersion)
		},
		ValidatePath:  "/models",
		BuildRequest:  buildAnthropicMessages,
		ParseFrame:    parseAnthropicFrame,
		ParseResponse: parseAnthropicMessage,
	})
}

type anthropicRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	MaxTokens   int                     `json:"max_tokens"`
	Temperature float32                 `json:"temperature"`
	Stream      bool                    `json:"stream"`
}

func buildAnthropicMessages(model string, msgs []WireMessage, p Params) Request {
	body := anthropicRequest{
		Model:       model,
		Messages:    make([]chatCompletionMessage, len(msgs)),
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Stream:      p.Stream,
	}
	for i, m := range msgs {
		body.Messages[i] = chatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return Request{Path: "/messages", Body: body}
}

func parseAnthropicFrame(event string, data []byte) (stream.Frame, error) {
	var ev struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return stream.Frame{}, fmt.Errorf("%w: %v", chaterr.ErrMalformedStreamFrame, err)
	}
	if ev.Type == "" {
		ev.Type = event
	}
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" || ev.Delta.Type == "" {
			return stream.Frame{Text: ev.Delta.Text}, nil
		}
	case "message_stop":
		return stream.Frame{Done: true}, nil
	case "error":
		e := &chaterr.Error{Kind: chaterr.KindProviderError, Provider: string(types.ProviderAnthropic), Message: "error event in stream"}
		if ev.Error != nil {
			e.Kind = anthropicErrorKind(ev.Error.Type)
			e.Body = ev.Error.Message
		}
		return stream.Frame{}, e
	}
	return stream.Frame{}, nil
}

func anthropicErrorKind(t string) chaterr.Kind {
	switch strings.TrimSpace(t) {
	case "authentication_error", "permission_error":
		return chaterr.KindInvalidCredential
	case "rate_limit_error":
		return chaterr.KindRateLimited
	case "overloaded_error", "api_error":
		return chaterr.KindProviderUnavailable
	}
	return chaterr.KindProviderError
}

func parseAnthropicMessage(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode anthropic message: %w", err)
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}
