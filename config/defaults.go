package config

import "github.com/studyos/aigateway"

// HardFallbackTail is the small set of known-reliable candidates appended to
// every resolved chain. It is only reached when the primary and every
// configured fallback have failed or been skipped.
func HardFallbackTail() []aigateway.Candidate {
	return []aigateway.Candidate{
		{ProviderId: "groq", ModelId: "groq-llama-3.1-8b"},
		{ProviderId: "gemini", ModelId: "gemini-1.5-flash"},
	}
}

// DefaultSnapshot is the built-in bootstrap configuration served when the
// store is empty or unreachable before any successful load.
func DefaultSnapshot() *aigateway.Snapshot {
	return &aigateway.Snapshot{
		Providers: []aigateway.Provider{
			{Id: "groq", Name: "Groq Cloud", Enabled: true},
			{Id: "gemini", Name: "Google Gemini", Enabled: true},
			{Id: "openai", Name: "OpenAI", Enabled: false},
			{Id: "ollama", Name: "Local Ollama", Enabled: false},
		},
		Models: []aigateway.Model{
			{Id: "groq-llama-3.1-70b", ProviderId: "groq", ModelId: "llama-3.1-70b-versatile", ContextWindow: 8192, Enabled: true, Priority: 1},
			{Id: "groq-llama-3.1-8b", ProviderId: "groq", ModelId: "llama-3.1-8b-instant", ContextWindow: 8192, Enabled: true, Priority: 2},
			{Id: "groq-llama-3.2-90b-vision", ProviderId: "groq", ModelId: "llama-3.2-90b-vision-preview", ContextWindow: 8192, Enabled: true, Priority: 1},
			{Id: "groq-mixtral-8x7b", ProviderId: "groq", ModelId: "mixtral-8x7b-32768", ContextWindow: 32768, Enabled: true, Priority: 2},
			{Id: "gemini-1.5-flash", ProviderId: "gemini", ModelId: "gemini-1.5-flash", ContextWindow: 1_000_000, Enabled: true, Priority: 1},
			{Id: "gemini-1.5-pro", ProviderId: "gemini", ModelId: "gemini-1.5-pro", ContextWindow: 2_000_000, Enabled: true, Priority: 2},
			{Id: "openai-gpt-4o-mini", ProviderId: "openai", ModelId: "gpt-4o-mini", ContextWindow: 128_000, Enabled: true, Priority: 2},
			{Id: "ollama-llama3", ProviderId: "ollama", ModelId: "llama3", ContextWindow: 8192, Enabled: true, Priority: 5},
		},
		Routes: []aigateway.Route{
			defaultRoute(aigateway.TaskNotes, "groq-llama-3.1-70b", "groq-llama-3.1-8b"),
			defaultRoute(aigateway.TaskMcq, "groq-llama-3.1-70b", "groq-llama-3.1-8b"),
			defaultRoute(aigateway.TaskChat, "gemini-1.5-flash", "groq-llama-3.1-8b"),
			defaultRoute(aigateway.TaskAnalysis, "gemini-1.5-flash", "groq-mixtral-8x7b"),
			defaultRoute(aigateway.TaskVision, "groq-llama-3.2-90b-vision", "groq-llama-3.1-70b"),
			defaultRoute(aigateway.TaskTranslation, "gemini-1.5-flash", "groq-llama-3.1-8b"),
			defaultRoute(aigateway.TaskAdmin, "gemini-1.5-flash", "groq-llama-3.1-8b"),
		},
	}
}

func defaultRoute(task aigateway.Task, primaryModelId string, fallbackModelIds ...string) aigateway.Route {
	route := aigateway.Route{
		Task:    task,
		Primary: candidateForModel(primaryModelId),
	}
	for _, modelId := range fallbackModelIds {
		route.Fallbacks = append(route.Fallbacks, candidateForModel(modelId))
	}
	return route
}

func candidateForModel(modelId string) aigateway.Candidate {
	providers := map[string]string{
		"groq-llama-3.1-70b":        "groq",
		"groq-llama-3.1-8b":         "groq",
		"groq-llama-3.2-90b-vision": "groq",
		"groq-mixtral-8x7b":         "groq",
		"gemini-1.5-flash":          "gemini",
		"gemini-1.5-pro":            "gemini",
		"openai-gpt-4o-mini":        "openai",
		"ollama-llama3":             "ollama",
	}
	return aigateway.Candidate{ProviderId: providers[modelId], ModelId: modelId}
}
