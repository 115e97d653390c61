// Package storage persists named JSON blobs (conversation list, settings,
// credentials) behind a write-through in-memory mirror.
package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/evallife/polychat/internal/types"
	"github.com/rs/zerolog"
)

const (
	KeyChats       = "chats"
	KeySettings    = "settings"
	KeyCredentials = "credentials"
)

type Backend interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Close() error
}

// Store is the only reader and writer of a Backend. The mirror is updated
// exclusively by Set and Remove, after the backend accepted the write.
type Store struct {
	backend Backend
	log     zerolog.Logger

	mu    sync.Mutex
	cache map[string][]byte
}

func NewStore(backend Backend, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log,
		cache:   map[string][]byte{},
	}
}

// Get returns the blob stored under key, or nil if there is none.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache[key]; ok {
		return clone(v), nil
	}
	v, ok, err := s.backend.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	s.cache[key] = clone(v)
	return v, nil
}

func (s *Store) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Set(key, value); err != nil {
		delete(s.cache, key)
		s.log.Error().Err(err).Str("key", key).Msg("storage write failed")
		return fmt.Errorf("write %s: %w", key, err)
	}
	s.cache[key] = clone(value)
	return nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
	if err := s.backend.Remove(key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	data, err := s.Get(key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, data)
}

// LoadConversations returns the persisted conversation list in stored order.
func (s *Store) LoadConversations() ([]*types.Conversation, error) {
	var convs []*types.Conversation
	if _, err := s.getJSON(KeyChats, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *Store) SaveConversations(convs []*types.Conversation) error {
	if convs == nil {
		convs = []*types.Conversation{}
	}
	return s.setJSON(KeyChats, convs)
}

// LoadSettings reports found=false when nothing has been saved yet.
func (s *Store) LoadSettings() (types.Settings, bool, error) {
	var st types.Settings
	found, err := s.getJSON(KeySettings, &st)
	return st, found, err
}

func (s *Store) SaveSettings(st types.Settings) error {
	return s.setJSON(KeySettings, st)
}

// LoadCredentials reports found=false when nothing has been saved yet.
func (s *Store) LoadCredentials() (types.Credentials, bool, error) {
	creds := types.Credentials{}
	found, err := s.getJSON(KeyCredentials, &creds)
	if creds == nil {
		creds = types.Credentials{}
	}
	return creds, found, err
}

func (s *Store) SaveCredentials(creds types.Credentials) error {
	return s.setJSON(KeyCredentials, creds)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
