package provider

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
)

var passthroughRoles = map[types.Role]string{
	types.RoleUser:      "user",
	types.RoleAssistant: "assistant",
	types.RoleSystem:    "system",
}

func init() {
	register(&Adapter{
		ID:      types.ProviderOpenAI,
		Name:    "OpenAI",
		BaseURL: "https://api.openai.com/v1",
		Wire:    stream.WireSDK,
		Roles:   passthroughRoles,
		Models: catalog(types.ProviderOpenAI,
			[2]string{"gpt-4o", "GPT-4o"},
			[2]string{"gpt-4o-mini", "GPT-4o mini"},
			[2]string{"gpt-4-turbo", "GPT-4 Turbo"},
			[2]string{"o3-mini", "o3-mini"},
		),
		Authorize:     bearer,
		ValidatePath:  "/models",
		BuildRequest:  buildChatCompletion,
		ParseFrame:    parseChatCompletionFrame,
		ParseResponse: parseChatCompletion,
	})
	register(&Adapter{
		ID:            types.ProviderOpenAICompatible,
		Name:          "OpenAI-compatible",
		Wire:          stream.WireSDK,
		Roles:         passthroughRoles,
		Authorize:     bearer,
		ValidatePath:  "/models",
		BuildRequest:  buildChatCompletion,
		ParseFrame:    parseChatCompletionFrame,
		ParseResponse: parseChatCompletion,
	})
	register(&Adapter{
		ID:      types.ProviderMistral,
		Name:    "Mistral",
		BaseURL: "https://api.mistral.ai/v1",
		Wire:    stream.WireSSE,
		Roles:   passthroughRoles,
		Models: catalog(types.ProviderMistral,
			[2]string{"mistral-large-latest", "Mistral Large"},
			[2]string{"mistral-small-latest", "Mistral Small"},
			[2]string{"codestral-latest", "Codestral"},
		),
		Authorize:     bearer,
		ValidatePath:  "/models",
		BuildRequest:  buildChatCompletion,
		ParseFrame:    parseChatCompletionFrame,
		ParseResponse: parseChatCompletion,
	})
	register(&Adapter{
		ID:      types.ProviderXAI,
		Name:    "xAI",
		BaseURL: "https://api.x.ai/v1",
		Wire:    stream.WireSSE,
		Roles:   passthroughRoles,
		Models: catalog(types.ProviderXAI,
			[2]string{"grok-2-latest", "Grok 2"},
			[2]string{"grok-beta", "Grok Beta"},
		),
		Authorize:     bearer,
		ValidatePath:  "/models",
		BuildRequest:  buildChatCompletion,
		ParseFrame:    parseChatCompletionFrame,
		ParseResponse: parseChatCompletion,
	})
	register(&Adapter{
		ID:      types.ProviderPerplexity,
		Name:    "Perplexity",
		BaseURL: "https://api.perplexity.ai",
		Wire:    stream.WireSSE,
		Roles:   passthroughRoles,
		Models: catalog(types.ProviderPerplexity,
			[2]string{"sonar", "Sonar"},
			[2]string{"sonar-pro", "Sonar Pro"},
			[2]string{"sonar-reasoning", "Sonar Reasoning"},
		),
		Authorize:      bearer,
		ValidateMethod: http.MethodPost,
		ValidatePath:   "/chat/completions",
		ValidateBody: map[string]any{
			"model":      "sonar",
			"messages":   []map[string]string{{"role": "user", "content": "hi"}},
			"max_tokens": 1,
		},
		BuildRequest:  buildChatCompletion,
		ParseFrame:    parseChatCompletionFrame,
		ParseResponse: parseChatCompletion,
	})
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature float32                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Stream      bool                    `json:"stream"`
}

func buildChatCompletion(model string, msgs []WireMessage, p Params) Request {
	body := chatCompletionRequest{
		Model:       model,
		Messages:    make([]chatCompletionMessage, len(msgs)),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      p.Stream,
	}
	for i, m := range msgs {
		body.Messages[i] = chatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return Request{Path: "/chat/completions", Body: body}
}

type apiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func parseChatCompletionFrame(_ string, data []byte) (stream.Frame, error) {
	var chunk struct {
		apiErrorBody
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chunk); err != nil {
		return stream.Frame{}, fmt.Errorf("%w: %v", chaterr.ErrMalformedStreamFrame, err)
	}
	if chunk.Error != nil {
		return stream.Frame{}, &chaterr.Error{Kind: chaterr.KindProviderError, Message: "error event in stream", Body: chunk.Error.Message}
	}
	var frame stream.Frame
	for _, c := range chunk.Choices {
		frame.Text += c.Delta.Content
	}
	return frame, nil
}

func parseChatCompletion(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("decode chat completion: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
