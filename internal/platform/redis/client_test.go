package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipvreturn/internal/platform/config"
)

func TestNew_RequiresURL(t *testing.T) {
	client, err := New(config.RedisConfig{})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "required")
}

func TestNew_RejectsMalformedURL(t *testing.T) {
	client, err := New(config.RedisConfig{URL: "redis://[::1"})
	require.Error(t, err)
	assert.Nil(t, client)
}
