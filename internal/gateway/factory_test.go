package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbot/internal/config"
)

func TestNewExchangeFromConfig(t *testing.T) {
	cfg := config.Default()

	_, err := NewExchangeFromConfig(cfg, config.Credentials{})
	assert.ErrorIs(t, err, config.ErrMissingCredentials)

	v, err := NewExchangeFromConfig(cfg, config.Credentials{AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "upbit", v.Exchange.Name())
	assert.True(t, v.Client.HasCredentials())
	assert.NotNil(t, v.Stream)

	cfg.Exchange.Name = "paper"
	v, err = NewExchangeFromConfig(cfg, config.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "paper", v.Exchange.Name())
	assert.NotNil(t, v.Client)

	cfg.Exchange.Stream = false
	v, err = NewExchangeFromConfig(cfg, config.Credentials{})
	require.NoError(t, err)
	assert.Nil(t, v.Stream)

	cfg.Exchange.Name = "binance"
	_, err = NewExchangeFromConfig(cfg, config.Credentials{})
	assert.Error(t, err)
}
