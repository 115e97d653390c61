package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, id := range []types.ProviderID{
		types.ProviderGoogle, types.ProviderAnthropic, types.ProviderOpenAI, types.ProviderMistral,
		types.ProviderXAI, types.ProviderPerplexity, types.ProviderOpenAICompatible,
	} {
		t.Run(string(id), func(t *testing.T) {
			a, err := Lookup(id)
			require.NoError(t, err)
			assert.Equal(t, id, a.ID)
			assert.NotNil(t, a.Authorize)
			assert.NotNil(t, a.BuildRequest)
			assert.NotNil(t, a.ParseFrame)
			assert.NotNil(t, a.ParseResponse)
		})
	}

	_, err := Lookup("cohere")
	assert.ErrorIs(t, err, chaterr.ErrUnsupportedProvider)
	assert.Len(t, All(), 7)
}

func TestListModels(t *testing.T) {
	google, _ := Lookup(types.ProviderGoogle)
	models := google.ListModels("key")
	require.NotEmpty(t, models)
	assert.Equal(t, "gemini-2.0-flash", models[0].ID)
	for _, m := range models {
		assert.Equal(t, types.ProviderGoogle, m.Provider)
		assert.False(t, m.IsCustom)
	}

	models[0].ID = "mutated"
	assert.Equal(t, "gemini-2.0-flash", google.ListModels("")[0].ID)

	compat, _ := Lookup(types.ProviderOpenAICompatible)
	assert.Empty(t, compat.ListModels("key"))
}

func TestMapMessages(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleSystem, Content: "be brief"},
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello"},
		{Role: types.RoleUser, Content: "   "},
		{Role: types.RoleAssistant, Content: "", IsLoading: true},
	}
	tests := []struct {
		provider types.ProviderID
		want     []WireMessage
	}{
		{types.ProviderGoogle, []WireMessage{{"user", "be brief"}, {"user", "hi"}, {"model", "hello"}}},
		{types.ProviderAnthropic, []WireMessage{{"user", "be brief"}, {"user", "hi"}, {"assistant", "hello"}}},
		{types.ProviderOpenAI, []WireMessage{{"system", "be brief"}, {"user", "hi"}, {"assistant", "hello"}}},
		{types.ProviderMistral, []WireMessage{{"system", "be brief"}, {"user", "hi"}, {"assistant", "hello"}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			a, err := Lookup(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.MapMessages(msgs))
		})
	}
}

func TestEndpoint(t *testing.T) {
	a, _ := Lookup(types.ProviderOpenAI)
	assert.Equal(t, "https://api.openai.com/v1/models", a.Endpoint("", "/models"))
	assert.Equal(t, "http://localhost:8080/v1/models", a.Endpoint("http://localhost:8080/v1/", "models"))
}

func TestBuildRequest_Gemini(t *testing.T) {
	a, _ := Lookup(types.ProviderGoogle)
	req := a.BuildRequest("gemini-2.0-flash", []WireMessage{{"user", "hi"}}, Params{Temperature: 0.7, MaxTokens: 100, Stream: true})
	assert.Equal(t, "/models/gemini-2.0-flash:streamGenerateContent?alt=sse", req.Path)

	body, ok := req.Body.(geminiRequest)
	require.True(t, ok)
	assert.Equal(t, "user", body.Contents[0].Role)
	assert.Equal(t, 100, body.GenerationConfig.MaxOutputTokens)

	req = a.BuildRequest("gemini-2.0-flash", nil, Params{})
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", req.Path)
}

func TestParseFrames(t *testing.T) {
	tests := []struct {
		name     string
		provider types.ProviderID
		event    string
		data     string
		want     stream.Frame
		errKind  chaterr.Kind
	}{
		{"openai delta", types.ProviderXAI, "", `{"choices":[{"delta":{"content":"Hi"}}]}`, stream.Frame{Text: "Hi"}, 0},
		{"openai role only", types.ProviderXAI, "", `{"choices":[{"delta":{"role":"assistant"}}]}`, stream.Frame{}, 0},
		{"openai malformed", types.ProviderMistral, "", `{"choices":`, stream.Frame{}, chaterr.KindMalformedStreamFrame},
		{"openai error", types.ProviderPerplexity, "", `{"error":{"message":"bad"}}`, stream.Frame{}, chaterr.KindProviderError},
		{"anthropic delta", types.ProviderAnthropic, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Yo"}}`, stream.Frame{Text: "Yo"}, 0},
		{"anthropic ping", types.ProviderAnthropic, "ping", `{"type":"ping"}`, stream.Frame{}, 0},
		{"anthropic stop", types.ProviderAnthropic, "message_stop", `{"type":"message_stop"}`, stream.Frame{Done: true}, 0},
		{"anthropic overloaded", types.ProviderAnthropic, "error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, stream.Frame{}, chaterr.KindProviderUnavailable},
		{"gemini parts", types.ProviderGoogle, "", `{"candidates":[{"content":{"role":"model","parts":[{"text":"a"},{"text":"b"}]}}]}`, stream.Frame{Text: "ab"}, 0},
		{"gemini error", types.ProviderGoogle, "", `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, stream.Frame{}, chaterr.KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Lookup(tt.provider)
			require.NoError(t, err)
			frame, err := a.ParseFrame(tt.event, []byte(tt.data))
			if tt.errKind != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.errKind, chaterr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, frame)
		})
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		provider types.ProviderID
		body     string
		want     string
	}{
		{types.ProviderOpenAI, `{"choices":[{"message":{"role":"assistant","content":"full"}}]}`, "full"},
		{types.ProviderAnthropic, `{"content":[{"type":"text","text":"full"}]}`, "full"},
		{types.ProviderGoogle, `{"candidates":[{"content":{"parts":[{"text":"full"}]}}]}`, "full"},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			a, _ := Lookup(tt.provider)
			got, err := a.ParseResponse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapError(t *testing.T) {
	a, _ := Lookup(types.ProviderMistral)
	tests := []struct {
		status int
		kind   chaterr.Kind
	}{
		{401, chaterr.KindInvalidCredential},
		{403, chaterr.KindInvalidCredential},
		{429, chaterr.KindRateLimited},
		{500, chaterr.KindProviderUnavailable},
		{503, chaterr.KindProviderUnavailable},
		{400, chaterr.KindProviderError},
		{404, chaterr.KindProviderError},
	}
	for _, tt := range tests {
		err := a.MapError(tt.status, []byte(`{"error":"details"}`))
		assert.Equal(t, tt.kind, chaterr.KindOf(err), "status %d", tt.status)
	}

	var ce *chaterr.Error
	require.ErrorAs(t, a.MapError(400, []byte("  raw body  ")), &ce)
	assert.Equal(t, 400, ce.Status)
	assert.Equal(t, "raw body", ce.Body)
	assert.Equal(t, "mistral", ce.Provider)
}

func TestValidate(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-goog-api-key")
		if gotHeader != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	a, _ := Lookup(types.ProviderGoogle)
	client := resty.New()
	ctx := context.Background()

	assert.True(t, a.Validate(ctx, client, "good", srv.URL))
	assert.Equal(t, "good", gotHeader)
	assert.False(t, a.Validate(ctx, client, "bad", srv.URL))
	assert.False(t, a.Validate(ctx, client, "", srv.URL))
}

func TestValidate_NetworkFailureReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	a, _ := Lookup(types.ProviderAnthropic)
	assert.False(t, a.Validate(context.Background(), resty.New(), "key", url))
}

func TestValidate_PerplexityPostsMinimalCompletion(t *testing.T) {
	var method, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a, _ := Lookup(types.ProviderPerplexity)
	assert.True(t, a.Validate(context.Background(), resty.New(), "pplx", srv.URL))
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "Bearer pplx", auth)
}

func TestValidate_CompatibleRequiresBaseURL(t *testing.T) {
	a, _ := Lookup(types.ProviderOpenAICompatible)
	assert.False(t, a.Validate(context.Background(), resty.New(), "key", ""))
}
