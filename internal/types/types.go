package types

import (
	"time"
)

type Config struct {
	DBPath                string   `json:"db_path" env:"DB_PATH"`
	LogLevel              string   `json:"log_level" env:"LOG_LEVEL"`
	LogFormat             string   `json:"log_format" env:"LOG_FORMAT"`
	LogFile               string   `json:"log_file" env:"LOG_FILE"`
	RequestTimeoutSeconds int      `json:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`
	Temperature           float32  `json:"temperature" env:"TEMPERATURE"`
	MaxTokens             int      `json:"max_tokens" env:"MAX_TOKENS"`
	AbortOnSwitch         bool     `json:"abort_on_switch" env:"ABORT_ON_SWITCH"`
	DefaultModel          string   `json:"default_model" env:"DEFAULT_MODEL"`
	APIKeys               SeedKeys `json:"api_keys"`
}

// RequestTimeout is the idle timeout applied to every provider call.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SeedKeys are imported into the credential store on first run only.
type SeedKeys struct {
	Google     string `json:"google,omitempty" env:"GOOGLE_API_KEY"`
	Anthropic  string `json:"anthropic,omitempty" env:"ANTHROPIC_API_KEY"`
	OpenAI     string `json:"openai,omitempty" env:"OPENAI_API_KEY"`
	Mistral    string `json:"mistral,omitempty" env:"MISTRAL_API_KEY"`
	XAI        string `json:"xai,omitempty" env:"XAI_API_KEY"`
	Perplexity string `json:"perplexity,omitempty" env:"PERPLEXITY_API_KEY"`
}

// Credentials returns the non-empty seeds keyed by provider.
func (k SeedKeys) Credentials() Credentials {
	creds := Credentials{}
	for id, v := range map[ProviderID]string{
		ProviderGoogle:     k.Google,
		ProviderAnthropic:  k.Anthropic,
		ProviderOpenAI:     k.OpenAI,
		ProviderMistral:    k.Mistral,
		ProviderXAI:        k.XAI,
		ProviderPerplexity: k.Perplexity,
	} {
		if v != "" {
			creds[id] = v
		}
	}
	return creds
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ProviderID string

const (
	ProviderGoogle           ProviderID = "google"
	ProviderAnthropic        ProviderID = "anthropic"
	ProviderOpenAI           ProviderID = "openai"
	ProviderMistral          ProviderID = "mistral"
	ProviderXAI              ProviderID = "xai"
	ProviderPerplexity       ProviderID = "perplexity"
	ProviderOpenAICompatible ProviderID = "openai-compatible"
)

// Version is one committed generation of an assistant message.
type Version struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Incomplete bool      `json:"incomplete,omitempty"` // cut short by a failure
}

type Message struct {
	ID                  string    `json:"id"`
	Role                Role      `json:"role"`
	Content             string    `json:"content"`
	CreatedAt           time.Time `json:"created_at"`
	IsLoading           bool      `json:"is_loading,omitempty"`
	Incomplete          bool      `json:"incomplete,omitempty"` // mirrors the shown version
	Versions            []Version `json:"versions,omitempty"`
	CurrentVersionIndex int       `json:"current_version_index"`
}

func (m Message) Clone() Message {
	if m.Versions != nil {
		m.Versions = append([]Version(nil), m.Versions...)
	}
	return m
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ModelID   string    `json:"model_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// ModelRef is a catalog entry. BaseURL is only set for custom endpoints.
type ModelRef struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Provider    ProviderID `json:"provider"`
	Description string     `json:"description,omitempty"`
	BaseURL     string     `json:"base_url,omitempty"`
	IsFavorite  bool       `json:"is_favorite"`
	IsCustom    bool       `json:"is_custom"`
}

type Settings struct {
	DefaultModelID string     `json:"default_model_id"`
	Models         []ModelRef `json:"models"`
}

// Credentials maps a provider to its single secret. An empty value means inactive.
type Credentials map[ProviderID]string
