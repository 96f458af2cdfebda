// Package types defines the data shared between earshot's provider packages
// and the voice pipeline.
//
// Each provider package owns its request and configuration types. The values
// here cross package boundaries (a transcript flows from stt into the turn
// loop, messages flow from the responder into llm) and live in one place to
// avoid import cycles.
package types

import "time"

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech, trimmed of surrounding whitespace.
	Text string

	// Language is the detected or requested language, if the provider reports it.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint that raises the recognition probability of
// an uncommon word, such as the assistant's name.
type KeywordBoost struct {
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Message is a single entry in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	Content string

	// Name is an optional participant name.
	Name string
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// VoiceProfile selects and tunes a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means default.
	SpeedFactor float64

	// Language is the language hint for multilingual models (e.g. "en").
	Language string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	ContextWindow     int
	MaxOutputTokens   int
	SupportsStreaming bool
}
