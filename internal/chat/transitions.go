package chat

import (
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/types"
	"github.com/google/uuid"
)

// AppendUserMessage appends trimmed text as a user message to the active
// conversation, creating one if none is active.
func (s *Service) AppendUserMessage(text string) (types.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Message{}, chaterr.ErrEmptyInput
	}
	s.mu.Lock()
	c := s.findLocked(s.activeID)
	if c == nil {
		c = s.newConversationLocked("")
	}
	if s.busyLocked(c) {
		s.mu.Unlock()
		return types.Message{}, chaterr.ErrBusy
	}
	m := s.appendUserLocked(c, text)
	err := s.persistLocked()
	id := c.ID
	s.mu.Unlock()
	s.notify(id)
	return m, err
}

func (s *Service) appendUserLocked(c *types.Conversation, text string) types.Message {
	now := s.now()
	if c.Title == defaultTitle && !hasUserMessage(c) {
		c.Title = deriveTitle(text)
	}
	m := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleUser,
		Content:   text,
		CreatedAt: now,
	}
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = now
	return m
}

// BeginAssistantResponse appends a pending assistant message after the
// trailing user message.
func (s *Service) BeginAssistantResponse(convID string) (types.Message, error) {
	var m types.Message
	err := s.mutate(convID, func(c *types.Conversation) error {
		var err error
		m, err = s.beginLocked(c)
		return err
	})
	return m, err
}

func (s *Service) beginLocked(c *types.Conversation) (types.Message, error) {
	if s.busyLocked(c) {
		return types.Message{}, chaterr.ErrBusy
	}
	if n := len(c.Messages); n == 0 || c.Messages[n-1].Role != types.RoleUser {
		return types.Message{}, chaterr.New(chaterr.KindInvalidState, "an assistant response must follow a user message")
	}
	now := s.now()
	m := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleAssistant,
		CreatedAt: now,
		IsLoading: true,
	}
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = now
	return m, nil
}

// ApplyDelta appends text to a loading message.
func (s *Service) ApplyDelta(convID, msgID, text string) error {
	return s.mutate(convID, func(c *types.Conversation) error {
		m := findMessage(c, msgID)
		if m == nil {
			return messageNotFound(msgID)
		}
		if !m.IsLoading {
			return chaterr.ErrNotStreaming
		}
		m.Content += text
		return nil
	})
}

// Finalize commits a loading message's content as a version.
func (s *Service) Finalize(convID, msgID string) error {
	return s.finish(convID, msgID, false)
}

func (s *Service) finish(convID, msgID string, incomplete bool) error {
	return s.mutate(convID, func(c *types.Conversation) error {
		m := findMessage(c, msgID)
		if m == nil {
			return messageNotFound(msgID)
		}
		if !m.IsLoading {
			return chaterr.ErrNotStreaming
		}
		s.commit(m, incomplete)
		return nil
	})
}

// commit ends loading. A first generation always becomes version 0, even
// when empty. A regeneration that produced nothing falls back to the
// version shown before it started; otherwise it is appended and selected.
func (s *Service) commit(m *types.Message, incomplete bool) {
	m.IsLoading = false
	now := s.now()
	if len(m.Versions) == 0 {
		m.Versions = []types.Version{{ID: uuid.NewString(), Content: m.Content, CreatedAt: now, Incomplete: incomplete}}
		m.CurrentVersionIndex = 0
		m.Incomplete = incomplete
		return
	}
	if m.Content == "" {
		if m.CurrentVersionIndex < 0 || m.CurrentVersionIndex >= len(m.Versions) {
			m.CurrentVersionIndex = len(m.Versions) - 1
		}
		m.Content = m.Versions[m.CurrentVersionIndex].Content
		m.Incomplete = m.Versions[m.CurrentVersionIndex].Incomplete
		return
	}
	m.Versions = append(m.Versions, types.Version{ID: uuid.NewString(), Content: m.Content, CreatedAt: now, Incomplete: incomplete})
	m.CurrentVersionIndex = len(m.Versions) - 1
	m.Incomplete = incomplete
}

// SelectVersion displays an earlier version of a finalized message.
func (s *Service) SelectVersion(convID, msgID string, index int) error {
	return s.mutate(convID, func(c *types.Conversation) error {
		m := findMessage(c, msgID)
		if m == nil {
			return messageNotFound(msgID)
		}
		if m.IsLoading {
			return chaterr.New(chaterr.KindInvalidState, "message is still streaming")
		}
		if index < 0 || index >= len(m.Versions) {
			return chaterr.ErrInvalidVersion
		}
		m.CurrentVersionIndex = index
		m.Content = m.Versions[index].Content
		m.Incomplete = m.Versions[index].Incomplete
		return nil
	})
}

// prepareRegenerateLocked keeps the current content as a version, clears the
// message and puts it back into loading. It returns the messages that
// precede it, which form the request.
func (s *Service) prepareRegenerateLocked(c *types.Conversation, msgID string) ([]types.Message, error) {
	idx := -1
	for i := range c.Messages {
		if c.Messages[i].ID == msgID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, messageNotFound(msgID)
	}
	m := &c.Messages[idx]
	if m.Role != types.RoleAssistant || m.IsLoading {
		return nil, chaterr.New(chaterr.KindInvalidState, "only a finalized assistant message can be regenerated")
	}
	if s.busyLocked(c) {
		return nil, chaterr.ErrBusy
	}
	if !hasUserMessage(&types.Conversation{Messages: c.Messages[:idx]}) {
		return nil, chaterr.New(chaterr.KindInvalidState, "no user message precedes this response")
	}

	if len(m.Versions) == 0 {
		m.Versions = []types.Version{{ID: uuid.NewString(), Content: m.Content, CreatedAt: m.CreatedAt, Incomplete: m.Incomplete}}
		m.CurrentVersionIndex = 0
	}
	m.Content = ""
	m.IsLoading = true
	c.UpdatedAt = s.now()
	return cloneMessages(c.Messages[:idx]), nil
}

func (s *Service) busyLocked(c *types.Conversation) bool {
	if _, ok := s.inflight[c.ID]; ok {
		return true
	}
	for i := range c.Messages {
		if c.Messages[i].IsLoading {
			return true
		}
	}
	return false
}

func findMessage(c *types.Conversation, id string) *types.Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

func hasUserMessage(c *types.Conversation) bool {
	for _, m := range c.Messages {
		if m.Role == types.RoleUser {
			return true
		}
	}
	return false
}

func cloneMessages(msgs []types.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
