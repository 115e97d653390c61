// Package provider is the static catalog of supported LLM providers. Each
// Adapter carries everything provider-specific: endpoints, auth headers,
// role mapping, request payloads and stream frame parsing.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
	"github.com/go-resty/resty/v2"
)

// Params are the fixed sampling parameters sent with every request.
type Params struct {
	Temperature float32
	MaxTokens   int
	Stream      bool
}

// WireMessage is a message after role mapping.
type WireMessage struct {
	Role    string
	Content string
}

// Request is a provider-specific HTTP request ready to be issued.
type Request struct {
	Path string
	Body any
}

type Adapter struct {
	ID      types.ProviderID
	Name    string
	BaseURL string
	Wire    stream.WireFormat

	// Roles maps conversation roles to the provider's wire roles. A role
	// missing from the map is dropped from the request.
	Roles map[types.Role]string

	Models []types.ModelRef

	// Authorize sets the credential header(s) on a request.
	Authorize func(req *resty.Request, credential string)

	// ValidateMethod/ValidatePath describe the cheapest authenticated call.
	ValidateMethod string
	ValidatePath   string
	ValidateBody   any

	BuildRequest  func(model string, msgs []WireMessage, p Params) Request
	ParseFrame    stream.FrameParser
	ParseResponse func(body []byte) (string, error)
}

var registry = map[types.ProviderID]*Adapter{}

func register(a *Adapter) {
	registry[a.ID] = a
}

// Lookup resolves a provider id to its adapter.
func Lookup(id types.ProviderID) (*Adapter, error) {
	a, ok := registry[id]
	if !ok {
		return nil, &chaterr.Error{Kind: chaterr.KindUnsupportedProvider, Provider: string(id), Message: "unsupported provider"}
	}
	return a, nil
}

// All returns every registered adapter ordered by id.
func All() []*Adapter {
	out := make([]*Adapter, 0, len(registry))
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListModels returns the offline catalog of a provider. The credential is
// not used; compatible endpoints never auto-discover models.
func (a *Adapter) ListModels(_ string) []types.ModelRef {
	out := make([]types.ModelRef, len(a.Models))
	copy(out, a.Models)
	return out
}

// MapMessages applies the role table and drops empty or loading messages.
func (a *Adapter) MapMessages(msgs []types.Message) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.IsLoading || strings.TrimSpace(m.Content) == "" {
			continue
		}
		role, ok := a.Roles[m.Role]
		if !ok {
			continue
		}
		out = append(out, WireMessage{Role: role, Content: m.Content})
	}
	return out
}

// Endpoint joins the adapter's (or an override) base URL with path.
func (a *Adapter) Endpoint(baseURL, path string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = strings.TrimRight(a.BaseURL, "/")
	}
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Validate issues a minimal authenticated request and reports whether the
// credential was accepted. It never returns an error.
func (a *Adapter) Validate(ctx context.Context, client *resty.Client, credential, baseURL string) bool {
	if strings.TrimSpace(credential) == "" {
		return false
	}
	if a.ID == types.ProviderOpenAICompatible && strings.TrimSpace(baseURL) == "" {
		return false
	}
	req := client.R().SetContext(ctx)
	a.Authorize(req, credential)
	method := a.ValidateMethod
	if method == "" {
		method = http.MethodGet
	}
	if a.ValidateBody != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(a.ValidateBody)
	}
	resp, err := req.Execute(method, a.Endpoint(baseURL, a.ValidatePath))
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

func bearer(req *resty.Request, credential string) {
	req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", credential))
}

func catalog(p types.ProviderID, entries ...[2]string) []types.ModelRef {
	out := make([]types.ModelRef, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.ModelRef{ID: e[0], Name: e[1], Provider: p})
	}
	return out
}
