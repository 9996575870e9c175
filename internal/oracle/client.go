package oracle

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const envProvider = "ORACLE_PROVIDER" // "gemini" or "openai"

// NewClientFromEnv picks the vision backend from ORACLE_PROVIDER,
// defaulting to Gemini.
func NewClientFromEnv(logger zerolog.Logger, model string) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv(envProvider)))
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini":
		return NewGeminiWithLogger(logger, model)
	case "openai":
		return NewOpenAIWithLogger(logger, model)
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s (use 'gemini' or 'openai')", provider)
	}
}
