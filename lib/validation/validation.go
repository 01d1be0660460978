package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"
)

// MaxPromptLength bounds user prompts; anything longer is almost certainly
// pasted garbage and wastes oracle tokens.
const MaxPromptLength = 2000

// ValidatePrompt checks that a recommendation prompt is non-empty, within the
// length bound, and valid UTF-8.
func ValidatePrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxPromptLength {
		return fmt.Errorf("prompt must be at most %d characters", MaxPromptLength)
	}
	if !utf8.ValidString(prompt) {
		return fmt.Errorf("prompt must be valid UTF-8")
	}
	return nil
}

// WriteError writes a validation error response to the HTTP response writer.
// It takes a response writer, error message, and HTTP status code.
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	}); err != nil {
		slog.Error("Failed to encode error response", slog.Any("error", err))
	}
}
