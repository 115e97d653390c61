package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(timeout time.Duration) *Client {
	return NewClient(nil, Options{Timeout: timeout}, zerolog.Nop())
}

func userMessages(text string) []types.Message {
	return []types.Message{{ID: "u1", Role: types.RoleUser, Content: text}}
}

func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, f := range frames {
		_, _ = io.WriteString(w, f)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestSend_PreflightRejections(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "grok-2-latest", Provider: types.ProviderXAI, BaseURL: srv.URL}
	tests := []struct {
		name  string
		msgs  []types.Message
		model types.ModelRef
		cred  string
		kind  chaterr.Kind
	}{
		{"empty messages", nil, model, "key", chaterr.KindEmptyInput},
		{"only loading messages", []types.Message{{Role: types.RoleAssistant, IsLoading: true}}, model, "key", chaterr.KindEmptyInput},
		{"missing credential", userMessages("hi"), model, "  ", chaterr.KindMissingCredential},
		{"missing model id", userMessages("hi"), types.ModelRef{Provider: types.ProviderXAI}, "key", chaterr.KindModelNotFound},
		{"missing provider", userMessages("hi"), types.ModelRef{ID: "x"}, "key", chaterr.KindUnsupportedProvider},
		{"unknown provider", userMessages("hi"), types.ModelRef{ID: "x", Provider: "cohere"}, "key", chaterr.KindUnsupportedProvider},
		{"compatible without base url", userMessages("hi"), types.ModelRef{ID: "llama", Provider: types.ProviderOpenAICompatible}, "key", chaterr.KindModelNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := newTestClient(time.Second).Send(context.Background(), tt.msgs, tt.model, tt.cred)
			require.Error(t, err)
			assert.Nil(t, st)
			assert.Equal(t, tt.kind, chaterr.KindOf(err))
		})
	}
	assert.Zero(t, hits.Load())
}

func TestSend_GoogleSSE(t *testing.T) {
	var path, key string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path + "?" + r.URL.RawQuery
		key = r.Header.Get("x-goog-api-key")
		body = decodeBody(t, r)
		writeSSE(w,
			`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Recur"}]}}]}`+"\r\n\r\n",
			`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"sion is"}]}}]}`+"\r\n\r\n",
			`data: {"candidates":[{"content":{"role":"model","parts":[{"text":" when a function calls itself."}]}}]}`+"\r\n\r\n",
		)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "gemini-2.0-flash", Provider: types.ProviderGoogle, BaseURL: srv.URL}
	msgs := []types.Message{
		{Role: types.RoleSystem, Content: "be brief"},
		{Role: types.RoleUser, Content: "Explain recursion"},
	}
	st, err := newTestClient(time.Second).Send(context.Background(), msgs, model, "g-key")
	require.NoError(t, err)
	text, err := stream.Collect(st)
	require.NoError(t, err)

	assert.Equal(t, "Recursion is when a function calls itself.", text)
	assert.Equal(t, "/models/gemini-2.0-flash:streamGenerateContent?alt=sse", path)
	assert.Equal(t, "g-key", key)
	contents := body["contents"].([]any)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].(map[string]any)["role"])
	cfg := body["generationConfig"].(map[string]any)
	assert.InDelta(t, DefaultTemperature, cfg["temperature"], 0.001)
	assert.EqualValues(t, DefaultMaxTokens, cfg["maxOutputTokens"])
}

func TestSend_AnthropicSSE(t *testing.T) {
	var version, key string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		version = r.Header.Get("anthropic-version")
		key = r.Header.Get("x-api-key")
		body = decodeBody(t, r)
		writeSSE(w,
			"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{}}\n\n",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello\"}}\n\n",
			"event: ping\ndata: {\"type\":\"ping\"}\n\n",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\" there\"}}\n\n",
			"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
		)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "claude-3-5-haiku-latest", Provider: types.ProviderAnthropic, BaseURL: srv.URL}
	msgs := []types.Message{{Role: types.RoleSystem, Content: "sys"}, {Role: types.RoleUser, Content: "hi"}}
	st, err := newTestClient(time.Second).Send(context.Background(), msgs, model, "a-key")
	require.NoError(t, err)
	text, err := stream.Collect(st)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", text)
	assert.Equal(t, "2023-06-01", version)
	assert.Equal(t, "a-key", key)
	assert.Equal(t, true, body["stream"])
	for _, m := range body["messages"].([]any) {
		assert.NotEqual(t, "system", m.(map[string]any)["role"])
	}
}

func TestSend_MalformedFrameSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer m-key", r.Header.Get("Authorization"))
		writeSSE(w,
			"data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n",
			"data: {\"choices\":[{\"delta\":\n\n",
			"data: {\"choices\":[{\"delta\":{\"content\":\" two\"}}]}\n\n",
			"data: [DONE]\n\n",
		)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "mistral-small-latest", Provider: types.ProviderMistral, BaseURL: srv.URL}
	st, err := newTestClient(time.Second).Send(context.Background(), userMessages("hi"), model, "m-key")
	require.NoError(t, err)
	text, err := stream.Collect(st)
	require.NoError(t, err)
	assert.Equal(t, "one two", text)
}

func TestSend_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   chaterr.Kind
	}{
		{http.StatusUnauthorized, chaterr.KindInvalidCredential},
		{http.StatusForbidden, chaterr.KindInvalidCredential},
		{http.StatusTooManyRequests, chaterr.KindRateLimited},
		{http.StatusBadGateway, chaterr.KindProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"secret provider detail"}}`)
			}))
			defer srv.Close()

			model := types.ModelRef{ID: "grok-2-latest", Provider: types.ProviderXAI, BaseURL: srv.URL}
			_, err := newTestClient(time.Second).Send(context.Background(), userMessages("hi"), model, "key")
			require.Error(t, err)
			assert.Equal(t, tt.kind, chaterr.KindOf(err))
			assert.NotContains(t, chaterr.UserMessage(err), "secret provider detail")
			assert.EqualValues(t, 1, hits.Load())
		})
	}
}

func TestSend_ProviderErrorFallsBackToPlainRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body := decodeBody(t, r)
		if body["stream"] == true {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"streaming not supported"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"plain answer"}}]}`)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "sonar", Provider: types.ProviderPerplexity, BaseURL: srv.URL}
	st, err := newTestClient(time.Second).Send(context.Background(), userMessages("hi"), model, "key")
	require.NoError(t, err)
	text, err := stream.Collect(st)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSend_FallbackFailureReturnsOriginalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "sonar", Provider: types.ProviderPerplexity, BaseURL: srv.URL}
	_, err := newTestClient(time.Second).Send(context.Background(), userMessages("hi"), model, "key")
	var ce *chaterr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chaterr.KindProviderError, ce.Kind)
	assert.Equal(t, http.StatusNotFound, ce.Status)
}

func TestSend_JSONResponseToStreamingRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"whole reply"}}]}`)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "grok-2-latest", Provider: types.ProviderXAI, BaseURL: srv.URL}
	st, err := newTestClient(time.Second).Send(context.Background(), userMessages("hi"), model, "key")
	require.NoError(t, err)

	d, err := st.Recv()
	require.NoError(t, err)
	assert.Equal(t, "whole reply", d)
	_, err = st.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, st.Close())
}

func TestSend_TimeoutBeforeHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "grok-2-latest", Provider: types.ProviderXAI, BaseURL: srv.URL}
	_, err := newTestClient(50*time.Millisecond).Send(context.Background(), userMessages("hi"), model, "key")
	require.Error(t, err)
	assert.ErrorIs(t, err, chaterr.ErrTimeout)
	assert.False(t, chaterr.KindOf(err) == chaterr.KindProviderError)
}

func TestSend_IdleTimeoutMidStreamKeepsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Partial ans\"}}]}\n\n")
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "grok-2-latest", Provider: types.ProviderXAI, BaseURL: srv.URL}
	st, err := newTestClient(100*time.Millisecond).Send(context.Background(), userMessages("hi"), model, "key")
	require.NoError(t, err)
	text, err := stream.Collect(st)
	assert.Equal(t, "Partial ans", text)
	assert.ErrorIs(t, err, chaterr.ErrTimeout)
}

func TestSend_CancelMidStream(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	model := types.ModelRef{ID: "grok-2-latest", Provider: types.ProviderXAI, BaseURL: srv.URL}
	st, err := newTestClient(5*time.Second).Send(ctx, userMessages("hi"), model, "key")
	require.NoError(t, err)
	defer st.Close()

	d, err := st.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", d)
	<-started
	cancel()
	_, err = st.Recv()
	assert.ErrorIs(t, err, chaterr.ErrCanceled)
}

func TestSend_OpenAISDKStream(t *testing.T) {
	var auth string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body = decodeBody(t, r)
		writeSSE(w,
			"data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n",
			"data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"SDK \"}}]}\n\n",
			"data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"stream\"}}]}\n\n",
			"data: [DONE]\n\n",
		)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "local-llama", Provider: types.ProviderOpenAICompatible, BaseURL: srv.URL + "/v1", IsCustom: true}
	msgs := []types.Message{{Role: types.RoleSystem, Content: "sys"}, {Role: types.RoleUser, Content: "hi"}}
	st, err := newTestClient(time.Second).Send(context.Background(), msgs, model, "o-key")
	require.NoError(t, err)
	text, err := stream.Collect(st)
	require.NoError(t, err)

	assert.Equal(t, "SDK stream", text)
	assert.Equal(t, "Bearer o-key", auth)
	assert.Equal(t, "local-llama", body["model"])
	assert.Equal(t, true, body["stream"])
	first := body["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
}

func TestSend_OpenAISDKInvalidCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	model := types.ModelRef{ID: "gpt-4o-mini", Provider: types.ProviderOpenAI, BaseURL: srv.URL + "/v1"}
	_, err := newTestClient(time.Second).Send(context.Background(), userMessages("hi"), model, "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, chaterr.ErrInvalidCredential)
}

func TestValidate_UnknownProvider(t *testing.T) {
	assert.False(t, newTestClient(time.Second).Validate(context.Background(), "cohere", "key", ""))
}

func TestValidate_DelegatesToAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models") || r.Header.Get("Authorization") != "Bearer ok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(time.Second)
	assert.True(t, c.Validate(context.Background(), types.ProviderOpenAICompatible, "ok", srv.URL))
	assert.False(t, c.Validate(context.Background(), types.ProviderOpenAICompatible, "nope", srv.URL))
}
