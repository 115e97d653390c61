package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/types"
	"github.com/rs/zerolog"
)

// Send appends text to the active conversation and streams the assistant's
// reply into a new message. It returns once that message is finalized, so
// callers run it off the UI goroutine.
//
// Empty input, a busy conversation or an unresolvable model block the send
// before anything is mutated and record a blocking notice. Failures after
// the messages exist keep the partial reply and record a non-blocking
// notice. A stopped reply returns nil.
func (s *Service) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.block(s.ActiveID(), chaterr.New(chaterr.KindEmptyInput, "message is empty"))
	}

	s.mu.Lock()
	c := s.findLocked(s.activeID)
	if c != nil && s.busyLocked(c) {
		s.mu.Unlock()
		return s.block(c.ID, chaterr.ErrBusy)
	}
	model, cred, err := s.resolver.Resolve(c)
	if err != nil {
		s.mu.Unlock()
		return s.block(s.ActiveID(), err)
	}
	if c == nil {
		c = s.newConversationLocked(model.ID)
	}
	s.appendUserLocked(c, text)
	reply, err := s.beginLocked(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	history := cloneMessages(c.Messages[:len(c.Messages)-1])
	ctx, cancel := s.startLocked(ctx, c.ID, reply.ID)
	s.persistOrLog()
	convID := c.ID
	s.mu.Unlock()

	s.notify(convID)
	return s.run(ctx, cancel, convID, reply.ID, history, model, cred)
}

// Regenerate streams a new version into a finalized assistant message,
// using the messages before it as the request.
func (s *Service) Regenerate(ctx context.Context, convID, msgID string) error {
	s.mu.Lock()
	c := s.findLocked(convID)
	if c == nil {
		s.mu.Unlock()
		return conversationNotFound(convID)
	}
	if s.busyLocked(c) {
		s.mu.Unlock()
		return s.block(convID, chaterr.ErrBusy)
	}
	model, cred, err := s.resolver.Resolve(c)
	if err != nil {
		s.mu.Unlock()
		return s.block(convID, err)
	}
	history, err := s.prepareRegenerateLocked(c, msgID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := s.startLocked(ctx, convID, msgID)
	s.persistOrLog()
	s.mu.Unlock()

	s.notify(convID)
	return s.run(ctx, cancel, convID, msgID, history, model, cred)
}

// Stop aborts the response in flight for the conversation. The partial
// reply is kept and marked incomplete.
func (s *Service) Stop(convID string) bool {
	s.mu.Lock()
	f, ok := s.inflight[convID]
	s.mu.Unlock()
	if ok {
		s.log.Info().Str("conversation_id", convID).Str("message_id", f.messageID).Msg("stopping response")
		f.cancel()
	}
	return ok
}

func (s *Service) startLocked(ctx context.Context, convID, msgID string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	s.inflight[convID] = &flight{messageID: msgID, cancel: cancel}
	return ctx, cancel
}

func (s *Service) release(convID, msgID string, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	if f, ok := s.inflight[convID]; ok && f.messageID == msgID {
		delete(s.inflight, convID)
	}
	s.mu.Unlock()
	s.notify(convID)
}

func (s *Service) run(ctx context.Context, cancel context.CancelFunc, convID, msgID string, history []types.Message, model types.ModelRef, cred string) error {
	defer s.release(convID, msgID, cancel)
	log := s.log.With().
		Str("conversation_id", convID).
		Str("message_id", msgID).
		Str("provider", string(model.Provider)).
		Str("model", model.ID).
		Logger()

	st, err := s.dispatcher.Send(ctx, history, model, cred)
	if err != nil {
		return s.fail(log, convID, msgID, err)
	}
	defer st.Close()

	for {
		delta, err := st.Recv()
		if errors.Is(err, io.EOF) {
			if err := s.finish(convID, msgID, false); err != nil && !gone(err) {
				return err
			}
			log.Debug().Msg("response finalized")
			return nil
		}
		if err != nil {
			return s.fail(log, convID, msgID, err)
		}
		if err := s.ApplyDelta(convID, msgID, delta); err != nil {
			if gone(err) {
				log.Debug().Err(err).Msg("target removed, dropping response")
				return nil
			}
			log.Warn().Err(err).Msg("persisting delta failed")
		}
	}
}

// fail finalizes the message with its partial content. Cancellation is
// silent; every other failure is recorded as a notice.
func (s *Service) fail(log zerolog.Logger, convID, msgID string, cause error) error {
	if err := s.finish(convID, msgID, true); err != nil && !gone(err) {
		log.Error().Err(err).Msg("finalizing failed response")
	}
	if errors.Is(cause, chaterr.ErrCanceled) || errors.Is(cause, context.Canceled) {
		log.Info().Msg("response stopped")
		return nil
	}
	log.Warn().Err(cause).Str("kind", chaterr.KindOf(cause).String()).Msg("response failed")
	s.addNotice(convID, cause, chaterr.Blocking(cause))
	return cause
}

// block records a blocking notice for a send that never started.
func (s *Service) block(convID string, err error) error {
	s.log.Info().Str("conversation_id", convID).Str("kind", chaterr.KindOf(err).String()).Msg("send blocked")
	s.addNotice(convID, err, true)
	return err
}

func gone(err error) bool {
	return errors.Is(err, chaterr.ErrMessageNotFound) || errors.Is(err, chaterr.ErrNotStreaming)
}
