package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"x@mailinator.com",
		"buyer+tag@example.co.uk",
		"a.b@sub.domain.io",
	}
	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}

	invalid := []string{
		"",
		"no-at-sign",
		"Bob <bob@example.com>",
		"spaces in@example.com",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "x@mailinator.com", NormalizeEmail("  X@Mailinator.COM "))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abc\x00  ", 10))
	assert.Equal(t, "abcde", SanitizeString("abcdefgh", 5))
}
