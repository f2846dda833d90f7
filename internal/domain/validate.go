package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if err := validate.Var(raw, "required,http_url"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Validate checks the create payload. Proxy membership is checked by the
// registry, which owns the proxy list.
func (r CreateWatchRequest) Validate() error {
	if err := ValidateURL(r.URL); err != nil {
		return err
	}
	if r.CheckIntervalSeconds < 0 {
		return fmt.Errorf("%w: check_interval_seconds must not be negative", ErrSchema)
	}
	return nil
}

// NormalizeTags trims, lower-cases and de-duplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
