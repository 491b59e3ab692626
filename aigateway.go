package aigateway

import (
	"fmt"
	"time"

	"github.com/studyos/aigateway/utils/array"
)

// Task is a logical purpose label decoupled from any vendor or model.
// Callers ask for a task; routing decides which backend answers.
type Task string

const (
	TaskNotes       Task = "NOTES_ENGINE"
	TaskMcq         Task = "MCQ_ENGINE"
	TaskChat        Task = "CHAT_ENGINE"
	TaskAnalysis    Task = "ANALYSIS_ENGINE"
	TaskVision      Task = "VISION_ENGINE"
	TaskTranslation Task = "TRANSLATION_ENGINE"
	TaskAdmin       Task = "ADMIN_ENGINE"
)

// KeyStatus is the lifecycle state of a credential. Only ACTIVE keys are
// eligible for selection. Transitions out of ACTIVE happen exclusively in
// the health tracker; transitions back to ACTIVE require an admin action.
type KeyStatus string

const (
	KeyActive      KeyStatus = "ACTIVE"
	KeyRateLimited KeyStatus = "RATE_LIMITED"
	KeyRevoked     KeyStatus = "REVOKED"
	KeyExhausted   KeyStatus = "EXHAUSTED"
)

type Provider struct {
	// Provider identifier. E.g., "groq", "gemini", "ollama".
	Id string `yaml:"id" json:"id"`

	// Display name. E.g., "Groq Cloud".
	Name string `yaml:"name" json:"name"`

	// Optional base URL override for OpenAI-compatible providers.
	// E.g., "https://api.groq.com/openai/v1"
	BaseUrl string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	Enabled bool `yaml:"enabled" json:"enabled"`
}

type Model struct {
	// Unique configuration id. E.g., "groq-llama-3.1-8b".
	Id string `yaml:"id" json:"id"`

	ProviderId string `yaml:"provider_id" json:"provider_id"`

	// The model string sent on the wire. E.g., "llama-3.1-8b-instant".
	ModelId string `yaml:"model_id" json:"model_id"`

	ContextWindow int  `yaml:"context_window" json:"context_window"`
	Enabled       bool `yaml:"enabled" json:"enabled"`

	// 1 = high, 10 = low.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`
}

type Key struct {
	Id         string    `yaml:"id" json:"id"`
	ProviderId string    `yaml:"provider_id" json:"provider_id"`
	Secret     string    `yaml:"secret" json:"secret"`
	Status     KeyStatus `yaml:"status" json:"status"`

	UsageCount      int64 `yaml:"usage_count" json:"usage_count"`
	DailyUsageCount int64 `yaml:"daily_usage_count" json:"daily_usage_count"`

	// Daily request budget. Zero means unlimited.
	DailyLimit int64 `yaml:"daily_limit,omitempty" json:"daily_limit,omitempty"`

	LastUsedAt time.Time `yaml:"last_used_at,omitempty" json:"last_used_at,omitempty"`
}

// Candidate is one (provider, model) pair considered for fulfilling a task.
type Candidate struct {
	ProviderId string `yaml:"provider_id" json:"provider_id"`
	ModelId    string `yaml:"model_id" json:"model_id"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s/%s", c.ProviderId, c.ModelId)
}

type Route struct {
	Task    Task      `yaml:"task" json:"task"`
	Primary Candidate `yaml:"primary" json:"primary"`

	// Ordered fallbacks tried after the primary, before the hard tail.
	Fallbacks []Candidate `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`

	// Optional system prompt applied when the request carries none.
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// Snapshot is a point-in-time read of the whole routing configuration.
// Callers must treat it as immutable; all mutation goes through the store.
type Snapshot struct {
	Providers []Provider `json:"providers"`
	Models    []Model    `json:"models"`
	Keys      []Key      `json:"keys"`
	Routes    []Route    `json:"routes"`

	// Admin kill switch. When set, every request is rejected up front.
	SafetyLock bool `json:"safety_lock,omitempty"`
}

// ProviderById returns the provider with the given id, if present.
func (s *Snapshot) ProviderById(id string) (Provider, bool) {
	return array.Find(s.Providers, func(p Provider) bool { return p.Id == id })
}

// ModelById returns the model configuration with the given id, if present.
func (s *Snapshot) ModelById(id string) (Model, bool) {
	return array.Find(s.Models, func(m Model) bool { return m.Id == id })
}

// RouteForTask returns the route mapped to the given task, if any.
func (s *Snapshot) RouteForTask(task Task) (Route, bool) {
	return array.Find(s.Routes, func(r Route) bool { return r.Task == task })
}

// ActiveKeys returns the keys of a provider that are eligible for selection.
func (s *Snapshot) ActiveKeys(providerId string) []Key {
	return array.Filter(s.Keys, func(k Key) bool {
		return k.ProviderId == providerId && k.Status == KeyActive
	})
}
