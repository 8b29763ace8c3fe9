package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barbridge/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{
		{Token: "alpha", Name: "statusbar"},
		{Token: "beta", Name: "launcher"},
	})

	info, err := auth.Authenticate("beta")
	require.NoError(t, err)
	assert.Equal(t, "launcher", info.Name)
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "alpha", Name: "statusbar"}})

	_, err := auth.Authenticate("alpha2")
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = auth.Authenticate("")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestStaticTokenAuthNoTokens(t *testing.T) {
	auth := NewStaticTokenAuth(nil)

	_, err := auth.Authenticate("anything")
	assert.ErrorIs(t, err, ErrAuthFailed)
}
