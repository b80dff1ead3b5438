// Package advisor provides the optional external advisory signal. The engine
// runs fully without one; an advisor can only lower confidence or classify
// orphan charges, never change the deterministic pipeline's answers.
package advisor

import (
	"fmt"

	"github.com/pennywhistle/tally-ho/internal/service"
)

// Config selects and configures an advisor implementation.
type Config struct {
	// Provider is "none" or "openai".
	Provider string
	APIKey   string
	Model    string
}

// New creates the configured advisor. Provider "none" (or empty) returns nil:
// the engine treats a nil advisor as the signal being absent.
func New(cfg Config) (service.Advisor, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("advisor provider openai requires an API key")
		}
		return NewOpenAI(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown advisor provider: %s", cfg.Provider)
	}
}
