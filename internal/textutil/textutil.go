// Package textutil provides text helpers for labels and sheet names.
package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	newlineRe    = regexp.MustCompile(`[\n\r\t]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// NormalizeWhitespaces replaces newlines and runs of whitespace with a single space
// and trims the result.
func NormalizeWhitespaces(text string) string {
	text = newlineRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(text, " "))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// LastSegment returns the part of a slash-delimited path after the last slash.
func LastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// SplitFields splits a space-delimited answer such as a select-multiple value.
func SplitFields(s string) []string {
	return strings.Fields(s)
}
