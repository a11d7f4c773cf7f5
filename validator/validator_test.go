package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidUsername(t *testing.T) {
	for _, ok := range []string{"abc", "user_01", "a-b-c", strings.Repeat("x", 50)} {
		assert.True(t, IsValidUsername(ok), ok)
	}
	for _, bad := range []string{"ab", "User", "with space", strings.Repeat("x", 51), ""} {
		assert.False(t, IsValidUsername(bad), bad)
	}
}

func TestIsValidPassword(t *testing.T) {
	assert.True(t, IsValidPassword("Secret#123"))
	assert.True(t, IsValidPassword("Ab1 efgh"))
	assert.False(t, IsValidPassword("Sh#1"))
	assert.False(t, IsValidPassword("secret#123"))
	assert.False(t, IsValidPassword("SECRET#123"))
	assert.False(t, IsValidPassword("Secret1234"))
	assert.False(t, IsValidPassword("Secret#123"+strings.Repeat("a", 16)))
}

func TestIsValidFullName(t *testing.T) {
	assert.True(t, IsValidFullName("Ada Lovelace-King"))
	assert.False(t, IsValidFullName("Ada1"))
	assert.False(t, IsValidFullName(""))
}
