package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// WatchPatch is a partial update. Nil fields are left untouched.
type WatchPatch struct {
	URL                  *string   `json:"url,omitempty"`
	Title                *string   `json:"title,omitempty"`
	Tags                 *[]string `json:"tags,omitempty"`
	Proxy                *string   `json:"proxy,omitempty"`
	Paused               *bool     `json:"paused,omitempty"`
	Muted                *bool     `json:"notification_muted,omitempty"`
	CheckIntervalSeconds *int      `json:"check_interval_seconds,omitempty"`
}

// DecodeWatchPatch decodes a JSON patch strictly: unknown fields, trailing
// data and values of the wrong type are all rejected with ErrSchema so a typo
// never turns into a silent no-op.
func DecodeWatchPatch(r io.Reader) (WatchPatch, error) {
	var p WatchPatch
	if err := decodeStrict(r, &p); err != nil {
		return WatchPatch{}, err
	}
	if err := p.Validate(); err != nil {
		return WatchPatch{}, err
	}
	return p, nil
}

// DecodeCreateWatchRequest applies the same strict rules to a create payload.
func DecodeCreateWatchRequest(r io.Reader) (CreateWatchRequest, error) {
	var req CreateWatchRequest
	if err := decodeStrict(r, &req); err != nil {
		return CreateWatchRequest{}, err
	}
	if err := req.Validate(); err != nil {
		return CreateWatchRequest{}, err
	}
	return req, nil
}

func decodeStrict(r io.Reader, v any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after object", ErrSchema)
	}

	// A null field would decode to a nil pointer and be ignored.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return fmt.Errorf("%w: expected a JSON object", ErrSchema)
	}
	for name, raw := range fields {
		if raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%w: %s must not be null", ErrSchema, name)
		}
	}
	return nil
}

// PatchFromMap builds a patch from loosely typed fields, applying the same
// strict rules as DecodeWatchPatch.
func PatchFromMap(fields map[string]any) (WatchPatch, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return WatchPatch{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return DecodeWatchPatch(bytes.NewReader(b))
}

// Validate checks field values that the JSON decoder cannot.
func (p WatchPatch) Validate() error {
	if p.CheckIntervalSeconds != nil && *p.CheckIntervalSeconds < 0 {
		return fmt.Errorf("%w: check_interval_seconds must not be negative", ErrSchema)
	}
	if p.URL != nil {
		if err := ValidateURL(*p.URL); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p WatchPatch) Empty() bool {
	return p.URL == nil && p.Title == nil && p.Tags == nil && p.Proxy == nil &&
		p.Paused == nil && p.Muted == nil && p.CheckIntervalSeconds == nil
}

// Apply writes the set fields onto w.
func (p WatchPatch) Apply(w *Watch) {
	if p.URL != nil {
		w.URL = strings.TrimSpace(*p.URL)
	}
	if p.Title != nil {
		w.Title = *p.Title
	}
	if p.Tags != nil {
		w.Tags = NormalizeTags(*p.Tags)
	}
	if p.Proxy != nil {
		w.Proxy = *p.Proxy
	}
	if p.Paused != nil {
		w.Paused = *p.Paused
	}
	if p.Muted != nil {
		w.Muted = *p.Muted
	}
	if p.CheckIntervalSeconds != nil {
		w.CheckIntervalSeconds = *p.CheckIntervalSeconds
	}
}
