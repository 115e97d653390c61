package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
	"github.com/go-resty/resty/v2"
)

func init() {
	register(&Adapter{
		ID:      types.ProviderGoogle,
		Name:    "Google",
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Wire:    stream.WireSSE,
		Roles: map[types.Role]string{
			types.RoleUser:      "user",
			types.RoleAssistant: "model",
			types.RoleSystem:    "user",
		},
		Models: catalog(types.ProviderGoogle,
			[2]string{"gemini-2.0-flash", "Gemini 2.0 Flash"},
			[2]string{"gemini-2.0-flash-lite", "Gemini 2.0 Flash-Lite"},
			[2]string{"gemini-1.5-pro", "Gemini 1.5 Pro"},
			[2]string{"gemini-1.5-flash", "Gemini 1.5 Flash"},
		),
		Authorize: func(req *resty.Request, credential string) {
			req.SetHeader("x-goog-api-key", credential)
		},
		ValidatePath:  "/models",
		BuildRequest:  buildGeminiRequest,
		ParseFrame:    parseGeminiFrame,
		ParseResponse: parseGeminiResponse,
	})
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float32 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

func buildGeminiRequest(model string, msgs []WireMessage, p Params) Request {
	var body geminiRequest
	body.Contents = make([]geminiContent, len(msgs))
	for i, m := range msgs {
		body.Contents[i] = geminiContent{Role: m.Role, Parts: []geminiPart{{Text: m.Content}}}
	}
	body.GenerationConfig.Temperature = p.Temperature
	body.GenerationConfig.MaxOutputTokens = p.MaxTokens

	path := "/models/" + url.PathEscape(model)
	if p.Stream {
		path += ":streamGenerateContent?alt=sse"
	} else {
		path += ":generateContent"
	}
	return Request{Path: path, Body: body}
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (r geminiResponse) text() string {
	var sb strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Gemini has no terminal sentinel; the stream ends at EOF.
func parseGeminiFrame(_ string, data []byte) (stream.Frame, error) {
	var resp geminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stream.Frame{}, fmt.Errorf("%w: %v", chaterr.ErrMalformedStreamFrame, err)
	}
	if resp.Error != nil {
		return stream.Frame{}, &chaterr.Error{
			Kind:     StatusKind(resp.Error.Code),
			Provider: string(types.ProviderGoogle),
			Status:   resp.Error.Code,
			Message:  "error event in stream",
			Body:     resp.Error.Message,
		}
	}
	return stream.Frame{Text: resp.text()}, nil
}

func parseGeminiResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	return resp.text(), nil
}
