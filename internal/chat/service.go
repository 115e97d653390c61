// Package chat is the conversation state machine. It owns every
// conversation in memory, persists the whole list after each transition and
// feeds assistant responses from the dispatcher's stream into messages.
//
// Assistant messages move through pending (empty, loading) and streaming
// (content growing, loading) to finalized, where the content is committed
// as a version. Regenerating a finalized message streams a new version into
// it while the earlier versions stay selectable.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/storage"
	"github.com/evallife/polychat/internal/stream"
	"github.com/evallife/polychat/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultTitle = "New chat"

// Dispatcher opens a response stream for msgs. *api.Client satisfies it.
type Dispatcher interface {
	Send(ctx context.Context, msgs []types.Message, model types.ModelRef, credential string) (*stream.Stream, error)
}

// Resolver picks the model and credential for a send. conv is nil when no
// conversation exists yet. *settings.Service satisfies it.
type Resolver interface {
	Resolve(conv *types.Conversation) (types.ModelRef, string, error)
}

type Options struct {
	// AbortOnSwitch stops the active conversation's response when another
	// conversation becomes active.
	AbortOnSwitch bool
}

// Summary is a list entry for one conversation.
type Summary struct {
	ID        string
	Title     string
	ModelID   string
	Messages  int
	Streaming bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type flight struct {
	messageID string
	cancel    context.CancelFunc
}

type Service struct {
	store      *storage.Store
	dispatcher Dispatcher
	resolver   Resolver
	opts       Options
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	convs    []*types.Conversation
	activeID string
	inflight map[string]*flight
	notices  []Notice

	listenMu  sync.Mutex
	listeners []func(convID string)
}

// New loads the persisted conversations. Messages left loading by an
// earlier crash are finalized as incomplete.
func New(store *storage.Store, dispatcher Dispatcher, resolver Resolver, opts Options, log zerolog.Logger) (*Service, error) {
	convs, err := store.LoadConversations()
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:      store,
		dispatcher: dispatcher,
		resolver:   resolver,
		opts:       opts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		convs:      convs,
		inflight:   map[string]*flight{},
	}
	if len(convs) > 0 {
		s.activeID = convs[0].ID
	}

	recovered := 0
	for _, c := range s.convs {
		for i := range c.Messages {
			if c.Messages[i].IsLoading {
				s.commit(&c.Messages[i], true)
				recovered++
			}
		}
	}
	if recovered > 0 {
		log.Warn().Int("messages", recovered).Msg("finalized messages interrupted by shutdown")
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OnChange registers fn to be called after any conversation changes. fn
// runs on the goroutine that made the change and must not block.
func (s *Service) OnChange(fn func(convID string)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(convID string) {
	s.listenMu.Lock()
	listeners := append([]func(string){}, s.listeners...)
	s.listenMu.Unlock()
	for _, fn := range listeners {
		fn(convID)
	}
}

// NewConversation creates an empty conversation bound to modelID and makes
// it active.
func (s *Service) NewConversation(modelID string) string {
	s.mu.Lock()
	prev := s.activeID
	c := s.newConversationLocked(modelID)
	s.switchLocked(prev, c.ID)
	s.persistOrLog()
	s.mu.Unlock()
	s.notify(c.ID)
	return c.ID
}

func (s *Service) newConversationLocked(modelID string) *types.Conversation {
	now := s.now()
	c := &types.Conversation{
		ID:        uuid.NewString(),
		Title:     defaultTitle,
		ModelID:   modelID,
		Messages:  []types.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs = append([]*types.Conversation{c}, s.convs...)
	s.activeID = c.ID
	return c
}

func (s *Service) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a copy of the active conversation.
func (s *Service) Active() (*types.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(s.activeID); c != nil {
		return c.Clone(), true
	}
	return nil, false
}

// SetActive selects the conversation shown to the user. A response still
// streaming into the previous conversation keeps running unless
// AbortOnSwitch is set.
func (s *Service) SetActive(id string) error {
	s.mu.Lock()
	if s.findLocked(id) == nil {
		s.mu.Unlock()
		return conversationNotFound(id)
	}
	prev := s.activeID
	s.activeID = id
	s.switchLocked(prev, id)
	s.mu.Unlock()
	s.notify(id)
	return nil
}

func (s *Service) switchLocked(prev, next string) {
	if !s.opts.AbortOnSwitch || prev == "" || prev == next {
		return
	}
	if f, ok := s.inflight[prev]; ok {
		s.log.Info().Str("conversation_id", prev).Msg("aborting response on switch")
		f.cancel()
	}
}

func (s *Service) Rename(id, title string) error {
	title = trimTitle(title)
	if title == "" {
		return chaterr.New(chaterr.KindEmptyInput, "title is empty")
	}
	return s.mutate(id, func(c *types.Conversation) error {
		c.Title = title
		return nil
	})
}

// SetModel rebinds the conversation to modelID for future sends.
func (s *Service) SetModel(id, modelID string) error {
	return s.mutate(id, func(c *types.Conversation) error {
		c.ModelID = modelID
		return nil
	})
}

// DeleteConversation removes a conversation, aborting its response if one
// is in flight.
func (s *Service) DeleteConversation(id string) error {
	s.mu.Lock()
	idx := -1
	for i, c := range s.convs {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return conversationNotFound(id)
	}
	if f, ok := s.inflight[id]; ok {
		f.cancel()
		delete(s.inflight, id)
	}
	s.convs = append(s.convs[:idx], s.convs[idx+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.convs) > 0 {
			s.activeID = s.convs[0].ID
		}
	}
	err := s.persistLocked()
	s.mu.Unlock()
	s.log.Info().Str("conversation_id", id).Msg("conversation deleted")
	s.notify(id)
	return err
}

// ClearHistory removes every conversation and aborts all responses.
func (s *Service) ClearHistory() error {
	s.mu.Lock()
	for id, f := range s.inflight {
		f.cancel()
		delete(s.inflight, id)
	}
	s.convs = nil
	s.activeID = ""
	s.notices = nil
	err := s.persistLocked()
	s.mu.Unlock()
	s.log.Info().Msg("history cleared")
	s.notify("")
	return err
}

// Conversations lists conversations newest first.
func (s *Service) Conversations() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.convs))
	for _, c := range s.convs {
		_, streaming := s.inflight[c.ID]
		out = append(out, Summary{
			ID:        c.ID,
			Title:     c.Title,
			ModelID:   c.ModelID,
			Messages:  len(c.Messages),
			Streaming: streaming,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return out
}

// Conversation returns a deep copy of the conversation.
func (s *Service) Conversation(id string) (*types.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(id); c != nil {
		return c.Clone(), true
	}
	return nil, false
}

// Streaming reports whether a response is in flight for the conversation.
func (s *Service) Streaming(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

func (s *Service) findLocked(id string) *types.Conversation {
	if id == "" {
		return nil
	}
	for _, c := range s.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// mutate applies fn to the live conversation, refreshes UpdatedAt and
// persists the full list. Listeners are notified after the lock is
// released.
func (s *Service) mutate(id string, fn func(c *types.Conversation) error) error {
	s.mu.Lock()
	c := s.findLocked(id)
	if c == nil {
		s.mu.Unlock()
		return conversationNotFound(id)
	}
	if err := fn(c); err != nil {
		s.mu.Unlock()
		return err
	}
	c.UpdatedAt = s.now()
	err := s.persistLocked()
	s.mu.Unlock()
	s.notify(id)
	return err
}

func (s *Service) persistLocked() error {
	if err := s.store.SaveConversations(s.convs); err != nil {
		s.log.Error().Err(err).Msg("persisting conversations failed")
		return err
	}
	return nil
}

func (s *Service) persistOrLog() {
	_ = s.persistLocked()
}

func conversationNotFound(id string) error {
	return &chaterr.Error{Kind: chaterr.KindMessageNotFound, Message: "conversation " + id + " not found"}
}

func messageNotFound(id string) error {
	return &chaterr.Error{Kind: chaterr.KindMessageNotFound, Message: "message " + id + " not found"}
}
