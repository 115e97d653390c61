// Package settings owns the model catalog, the default model and the
// per-provider credential map.
package settings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/provider"
	"github.com/evallife/polychat/internal/storage"
	"github.com/evallife/polychat/internal/types"
	"github.com/rs/zerolog"
)

// Validator checks a credential against its provider.
type Validator interface {
	Validate(ctx context.Context, id types.ProviderID, credential, baseURL string) bool
}

type Service struct {
	store     *storage.Store
	validator Validator
	log       zerolog.Logger

	mu       sync.Mutex
	settings types.Settings
	creds    types.Credentials
}

// New loads settings and credentials. On first run the catalog is seeded
// from every provider and credentials from the config seed keys.
func New(store *storage.Store, validator Validator, cfg types.Config, log zerolog.Logger) (*Service, error) {
	s := &Service{store: store, validator: validator, log: log}

	st, found, err := store.LoadSettings()
	if err != nil {
		return nil, err
	}
	if !found {
		st = seedSettings(cfg.DefaultModel)
		if err := store.SaveSettings(st); err != nil {
			return nil, err
		}
		log.Info().Int("models", len(st.Models)).Str("default", st.DefaultModelID).Msg("model catalog seeded")
	}
	s.settings = st

	creds, found, err := store.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if !found {
		creds = cfg.APIKeys.Credentials()
		if err := store.SaveCredentials(creds); err != nil {
			return nil, err
		}
		log.Info().Int("providers", len(creds)).Msg("credentials seeded from config")
	}
	s.creds = creds
	return s, nil
}

func seedSettings(defaultModel string) types.Settings {
	var models []types.ModelRef
	for _, a := range provider.All() {
		models = append(models, a.ListModels("")...)
	}
	st := types.Settings{Models: models}
	if _, ok := findModel(models, defaultModel); ok {
		st.DefaultModelID = defaultModel
	} else if len(models) > 0 {
		st.DefaultModelID = models[0].ID
	}
	return st
}

func (s *Service) Settings() types.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSettings(s.settings)
}

func (s *Service) Model(id string) (types.ModelRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findModel(s.settings.Models, id)
}

// Resolve returns the model and credential a send on conv should use.
func (s *Service) Resolve(conv *types.Conversation) (types.ModelRef, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ResolveActiveModel(conv, s.settings, s.creds)
}

// AddCustomModel adds a user-defined model. ID is the model name sent to
// the provider and must be unique in the catalog.
func (s *Service) AddCustomModel(ref types.ModelRef) (types.ModelRef, error) {
	ref.ID = strings.TrimSpace(ref.ID)
	ref.BaseURL = strings.TrimSpace(ref.BaseURL)
	if ref.ID == "" {
		return types.ModelRef{}, chaterr.New(chaterr.KindInvalidState, "model id is required")
	}
	if ref.Provider == "" {
		ref.Provider = types.ProviderOpenAICompatible
	}
	if _, err := provider.Lookup(ref.Provider); err != nil {
		return types.ModelRef{}, err
	}
	if ref.BaseURL == "" {
		return types.ModelRef{}, chaterr.New(chaterr.KindInvalidState, "custom models need a base URL")
	}
	if strings.TrimSpace(ref.Name) == "" {
		ref.Name = ref.ID
	}
	ref.IsCustom = true

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := findModel(s.settings.Models, ref.ID); ok {
		return types.ModelRef{}, &chaterr.Error{Kind: chaterr.KindInvalidState, Message: fmt.Sprintf("model %s already exists", ref.ID)}
	}
	next := cloneSettings(s.settings)
	next.Models = append(next.Models, ref)
	if err := s.saveLocked(next); err != nil {
		return types.ModelRef{}, err
	}
	s.log.Info().Str("model", ref.ID).Str("provider", string(ref.Provider)).Msg("custom model added")
	return ref, nil
}

// UpdateModel replaces the editable fields of a custom model.
func (s *Service) UpdateModel(ref types.ModelRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneSettings(s.settings)
	i := indexOf(next.Models, ref.ID)
	if i < 0 {
		return modelNotFound(ref.ID)
	}
	cur := next.Models[i]
	if !cur.IsCustom {
		return chaterr.New(chaterr.KindInvalidState, "built-in models cannot be edited")
	}
	if ref.Provider != "" {
		if _, err := provider.Lookup(ref.Provider); err != nil {
			return err
		}
		cur.Provider = ref.Provider
	}
	if name := strings.TrimSpace(ref.Name); name != "" {
		cur.Name = name
	}
	if url := strings.TrimSpace(ref.BaseURL); url != "" {
		cur.BaseURL = url
	}
	cur.Description = ref.Description
	next.Models[i] = cur
	return s.saveLocked(next)
}

// RemoveModel deletes a custom model. If it was the default, the first
// remaining model becomes the default.
func (s *Service) RemoveModel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneSettings(s.settings)
	i := indexOf(next.Models, id)
	if i < 0 {
		return modelNotFound(id)
	}
	if !next.Models[i].IsCustom {
		return chaterr.New(chaterr.KindInvalidState, "built-in models cannot be removed")
	}
	next.Models = append(next.Models[:i], next.Models[i+1:]...)
	if next.DefaultModelID == id {
		next.DefaultModelID = ""
		if len(next.Models) > 0 {
			next.DefaultModelID = next.Models[0].ID
		}
	}
	return s.saveLocked(next)
}

func (s *Service) ToggleFavorite(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneSettings(s.settings)
	i := indexOf(next.Models, id)
	if i < 0 {
		return false, modelNotFound(id)
	}
	next.Models[i].IsFavorite = !next.Models[i].IsFavorite
	if err := s.saveLocked(next); err != nil {
		return false, err
	}
	return next.Models[i].IsFavorite, nil
}

func (s *Service) SetDefaultModel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.settings.Models, id) < 0 {
		return modelNotFound(id)
	}
	next := cloneSettings(s.settings)
	next.DefaultModelID = id
	return s.saveLocked(next)
}

// SetCredential stores the single secret for a provider. A blank value
// clears it.
func (s *Service) SetCredential(id types.ProviderID, value string) error {
	if _, err := provider.Lookup(id); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return s.ClearCredential(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneCreds(s.creds)
	next[id] = value
	if err := s.store.SaveCredentials(next); err != nil {
		return err
	}
	s.creds = next
	s.log.Info().Str("provider", string(id)).Msg("credential set")
	return nil
}

func (s *Service) ClearCredential(id types.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[id]; !ok {
		return nil
	}
	next := cloneCreds(s.creds)
	delete(next, id)
	if err := s.store.SaveCredentials(next); err != nil {
		return err
	}
	s.creds = next
	s.log.Info().Str("provider", string(id)).Msg("credential cleared")
	return nil
}

func (s *Service) Credential(id types.ProviderID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[id]
}

// ActiveProviders lists the providers that have a credential, sorted.
func (s *Service) ActiveProviders() []types.ProviderID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ProviderID, 0, len(s.creds))
	for id, v := range s.creds {
		if v != "" {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateCredential pings the provider with credential. It does not store
// anything.
func (s *Service) ValidateCredential(ctx context.Context, id types.ProviderID, credential, baseURL string) bool {
	if s.validator == nil {
		return false
	}
	return s.validator.Validate(ctx, id, credential, baseURL)
}

func (s *Service) saveLocked(next types.Settings) error {
	if err := s.store.SaveSettings(next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

func modelNotFound(id string) error {
	return &chaterr.Error{Kind: chaterr.KindModelNotFound, Message: "model " + id + " not found"}
}

func indexOf(models []types.ModelRef, id string) int {
	for i, m := range models {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func cloneSettings(st types.Settings) types.Settings {
	st.Models = append([]types.ModelRef(nil), st.Models...)
	return st
}

func cloneCreds(c types.Credentials) types.Credentials {
	out := make(types.Credentials, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}
