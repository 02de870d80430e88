package coach

import (
	"fmt"
	"strings"
)

// Options configure backend construction.
type Options struct {
	Backend string `mapstructure:"backend"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// New selects a backend by name: mock (default) or openai.
func New(opts Options) (Backend, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "mock":
		return NewMockBackend(), nil
	case "openai":
		base := opts.BaseURL
		if base == "" {
			base = "https://api.openai.com"
		}
		return NewHTTPBackend(base, opts.APIKey, opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown coach backend %q", opts.Backend)
	}
}
