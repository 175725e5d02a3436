package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrValidation marks input rejected before any network call.
var ErrValidation = errors.New("validation failed")

// DefaultScheme is prepended when a submitted URL has no scheme prefix.
const DefaultScheme = "https://"

// Bookmark represents one saved URL belonging to a single user.
type Bookmark struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the store-assigned unique identifier.
	// Provisional entries carry a client-generated placeholder
	// (see reconcile) until the store confirms the write.
	ID string `json:"id"`

	// Owner is the identity of the user who created the bookmark.
	// Set once at creation, never mutated.
	Owner string `json:"owner"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// Title is the user-supplied display string. Never empty.
	Title string `json:"title"`

	// Target is the bookmarked URL. Always carries a scheme prefix
	// after normalization.
	Target string `json:"target"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	// CreatedAt is assigned by the store at insertion and is the
	// sort key for the visible list (newest first).
	CreatedAt time.Time `json:"created_at"`

	// Provisional is true while the entry exists only locally,
	// before the store has acknowledged the write.
	Provisional bool `json:"provisional,omitempty"`
}

// ValidateTitle trims the title and rejects empty input.
func ValidateTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	return title, nil
}

// NormalizeTarget trims the submitted URL, prepends the default secure
// scheme when no scheme prefix is present and rejects anything that
// still does not parse as a URL.
func NormalizeTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", fmt.Errorf("%w: url must not be empty", ErrValidation)
	}

	if !hasScheme(target) {
		target = DefaultScheme + target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url %q", ErrValidation, raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: url %q has no host", ErrValidation, raw)
	}

	return target, nil
}

// hasScheme reports whether the raw input already starts with a
// recognized scheme prefix.
func hasScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
