package provider

import (
	"net/http"
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
)

const bodySnippetLimit = 512

// StatusKind maps an HTTP status to an error kind.
func StatusKind(status int) chaterr.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return chaterr.KindInvalidCredential
	case status == http.StatusTooManyRequests:
		return chaterr.KindRateLimited
	case status >= 500:
		return chaterr.KindProviderUnavailable
	}
	return chaterr.KindProviderError
}

// MapError builds the typed error for a non-success response. The body is
// kept for diagnostics only.
func (a *Adapter) MapError(status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > bodySnippetLimit {
		snippet = snippet[:bodySnippetLimit]
	}
	return &chaterr.Error{
		Kind:     StatusKind(status),
		Provider: string(a.ID),
		Status:   status,
		Body:     snippet,
		Message:  "request failed",
	}
}
