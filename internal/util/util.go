// Package util holds small helpers shared across dailywrite packages.
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// WithRollback snapshots some state, applies a change and verifies it. When
// apply or verify fails the snapshot is handed to restore and the original
// failure is returned. A nil verify skips verification.
func WithRollback[S any](snapshot func() S, apply func() error, verify func() error, restore func(S) error) error {
	saved := snapshot()

	err := apply()
	if err == nil && verify != nil {
		err = verify()
	}
	if err == nil {
		return nil
	}

	if rerr := restore(saved); rerr != nil {
		return errors.Wrapf(err, "restore failed: %v", rerr)
	}
	return err
}

// Truncate cuts s to at most limit runes, marking the cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "\n\n… (truncated)"
}

// WordCount counts CJK ideographs individually and everything else by
// whitespace separated words.
func WordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// IsBlank reports whether s has no visible content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
