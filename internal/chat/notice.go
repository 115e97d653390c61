package chat

import (
	"time"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/google/uuid"
)

const maxNotices = 50

// Notice is a user-facing error kept apart from message content. Blocking
// notices belong to sends that were refused before any message was created.
type Notice struct {
	ID             string
	ConversationID string
	Kind           chaterr.Kind
	Text           string
	Blocking       bool
	CreatedAt      time.Time
}

func (s *Service) addNotice(convID string, err error, blocking bool) {
	n := Notice{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Kind:           chaterr.KindOf(err),
		Text:           chaterr.UserMessage(err),
		Blocking:       blocking,
		CreatedAt:      s.now(),
	}
	s.mu.Lock()
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.mu.Unlock()
	s.notify(convID)
}

// Notices returns the undismissed notices, oldest first.
func (s *Service) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

func (s *Service) DismissNotice(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i], s.notices[i+1:]...)
			return true
		}
	}
	return false
}
