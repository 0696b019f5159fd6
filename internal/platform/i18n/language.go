// Package i18n validates and normalizes the locales an instance can be configured with.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultTag is used when no language is configured.
var DefaultTag = language.English

var supported = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
}

var matcher = language.NewMatcher(supported)

// Supported returns the configurable base languages.
func Supported() []language.Tag {
	out := make([]language.Tag, len(supported))
	copy(out, supported)
	return out
}

// ParseTag parses a BCP 47 value and maps it onto a supported language.
// It reports false when the value is malformed or no supported language
// matches with at least high confidence.
func ParseTag(value string) (language.Tag, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultTag, true
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.Und, false
	}
	_, index, confidence := matcher.Match(tag)
	if confidence < language.High {
		return language.Und, false
	}
	return supported[index], true
}

// Normalize returns the canonical string for value, or "" when unsupported.
func Normalize(value string) string {
	tag, ok := ParseTag(value)
	if !ok {
		return ""
	}
	return tag.String()
}
