package profile

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTags      = 10
	MaxTagLength = 18
)

// ValidationError reports bad tag input. It is shown inline next to the
// input and never causes a state transition.
type ValidationError struct {
	Tag    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Tag == "" {
		return "invalid tags: " + e.Reason
	}
	return fmt.Sprintf("invalid tag %q: %s", e.Tag, e.Reason)
}

// ValidateTag checks a single tag as typed by the user and returns it trimmed.
func ValidateTag(tag string) (string, error) {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return "", &ValidationError{Reason: "tag cannot be empty"}
	}
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return "", &ValidationError{Tag: tag, Reason: fmt.Sprintf("tag cannot exceed %d characters", MaxTagLength)}
	}
	return trimmed, nil
}

// ValidateTags checks a full tag list before it is sent to the backend.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return &ValidationError{Reason: fmt.Sprintf("at most %d tags allowed, got %d", MaxTags, len(tags))}
	}
	for _, t := range tags {
		if _, err := ValidateTag(t); err != nil {
			return err
		}
	}
	return nil
}

// AddTag appends a validated tag to a copy of tags.
func AddTag(tags []string, tag string) ([]string, error) {
	if len(tags) >= MaxTags {
		return tags, &ValidationError{Tag: tag, Reason: fmt.Sprintf("at most %d tags allowed", MaxTags)}
	}
	t, err := ValidateTag(tag)
	if err != nil {
		return tags, err
	}
	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)
	return append(out, t), nil
}

// RemoveTag drops the tag at index i from a copy of tags.
func RemoveTag(tags []string, i int) ([]string, error) {
	if i < 0 || i >= len(tags) {
		return tags, &ValidationError{Reason: fmt.Sprintf("no tag at position %d", i)}
	}
	out := make([]string, 0, len(tags)-1)
	out = append(out, tags[:i]...)
	return append(out, tags[i+1:]...), nil
}
