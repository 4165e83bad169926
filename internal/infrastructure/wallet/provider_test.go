package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Nil(t, p.Signer())

	require.NoError(t, p.Connect("0xd533a949740bb3306d119cc777fa900ba034cd52"))
	require.NotNil(t, p.Signer())
	assert.Equal(t, "0xD533a949740bb3306d119CC777fa900bA034cd52", p.Signer().Address())

	p.Disconnect()
	assert.Nil(t, p.Signer())
}

func TestProvider_InvalidAddress(t *testing.T) {
	_, err := NewProvider("0xnothex")
	assert.Error(t, err)

	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Error(t, p.Connect("vitalik.eth"))
	assert.Nil(t, p.Signer())
}
