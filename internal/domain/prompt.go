package domain

import "time"

// SafetySuffix is appended verbatim to every built-in retouching instruction.
// Override texts are stored as complete strings, so accepted overrides are
// expected to carry it as well.
const SafetySuffix = " Do not alter face shape, eye color, bone structure, or hair." +
	" The person must be immediately recognizable as themselves."

// DefaultPrompts maps each intensity tier to its built-in instruction text.
var DefaultPrompts = map[Intensity]string{
	IntensityLight: "Very subtle retouching only: minimize visible blemishes," +
		" keep all skin texture and character intact." +
		" Natural, barely-edited look." + SafetySuffix,
	IntensityMedium: "Conservative portrait retouching: smooth minor skin blemishes," +
		" even out skin tone slightly, reduce under-eye shadows." +
		" Keep all facial features exactly the same." + SafetySuffix,
	IntensityStrong: "Professional portrait retouching: smooth skin, even out complexion," +
		" reduce wrinkles and blemishes, brighten eyes slightly." +
		" Maintain recognizable likeness and natural appearance." + SafetySuffix,
}

// RevisionEntry is an immutable history record of one accepted prompt
// revision.
type RevisionEntry struct {
	Version       int       `json:"version"`
	Intensity     Intensity `json:"intensity"`
	OldPrompt     string    `json:"old_prompt"`
	NewPrompt     string    `json:"new_prompt"`
	TriggerJobIDs []string  `json:"trigger_jobs"`
	CreatedAt     time.Time `json:"timestamp"`
}

// PromptOverrideSet is the single versioned document of per-intensity prompt
// overrides. Version starts at 1 with no overrides and increases by exactly
// one per accepted revision, so Version == len(History)+1 always holds.
type PromptOverrideSet struct {
	Version int                  `json:"version"`
	Prompts map[Intensity]string `json:"prompts"`
	History []RevisionEntry      `json:"history"`
}

// ActivePrompt resolves the instruction text in force for an intensity:
// the override when one exists, the built-in default otherwise.
func (s *PromptOverrideSet) ActivePrompt(intensity Intensity) string {
	if s != nil {
		if text, ok := s.Prompts[intensity]; ok && text != "" {
			return text
		}
	}
	if text, ok := DefaultPrompts[intensity]; ok {
		return text
	}
	return DefaultPrompts[IntensityMedium]
}
