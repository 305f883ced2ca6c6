// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("EARSHOT_TEST_STR", "hello")
	t.Setenv("EARSHOT_TEST_INT", "42")
	t.Setenv("EARSHOT_TEST_BAD_INT", "forty-two")
	t.Setenv("EARSHOT_TEST_FLOAT", "72.5")
	t.Setenv("EARSHOT_TEST_DUR", "300ms")
	t.Setenv("EARSHOT_TEST_BAD_DUR", "300")
	t.Setenv("EARSHOT_TEST_BOOL", "true")

	assert.Equal(t, "hello", ParseString("EARSHOT_TEST_STR", "def"))
	assert.Equal(t, "def", ParseString("EARSHOT_TEST_UNSET", "def"))

	assert.Equal(t, 42, ParseInt("EARSHOT_TEST_INT", 7))
	assert.Equal(t, 7, ParseInt("EARSHOT_TEST_BAD_INT", 7))
	assert.Equal(t, 7, ParseInt("EARSHOT_TEST_UNSET", 7))

	assert.Equal(t, 72.5, ParseFloat("EARSHOT_TEST_FLOAT", 1.0))
	assert.Equal(t, 300*time.Millisecond, ParseDuration("EARSHOT_TEST_DUR", time.Second))
	// Bare numbers are not durations.
	assert.Equal(t, time.Second, ParseDuration("EARSHOT_TEST_BAD_DUR", time.Second))

	assert.True(t, ParseBool("EARSHOT_TEST_BOOL", false))
	assert.False(t, ParseBool("EARSHOT_TEST_UNSET", false))
}

func TestSplitLabels(t *testing.T) {
	assert.Equal(t, []string{"bento", "atori"}, splitLabels("bento, atori"))
	assert.Equal(t, []string{"bento"}, splitLabels("bento,,  "))
	assert.Empty(t, splitLabels(""))
}
