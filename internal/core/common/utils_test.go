package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapping struct {
	Type string `json:"transformation_type"`
	Rule string `json:"transformation_rule"`
}

func TestParseJSON_StripsMarkdownFence(t *testing.T) {
	resp := "Here you go:\n```json\n{\"transformation_type\": \"format\", \"transformation_rule\": \"lower(email)\"}\n```"

	m, err := ParseJSON[mapping](resp)

	require.NoError(t, err)
	assert.Equal(t, "format", m.Type)
	assert.Equal(t, "lower(email)", m.Rule)
}

func TestParseJSON_NoObject(t *testing.T) {
	_, err := ParseJSON[mapping]("I cannot help with that")
	assert.Error(t, err)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := ParseJSON[mapping](`{"transformation_type": }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal JSON")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "ää...", Truncate("äääää", 2))
}
