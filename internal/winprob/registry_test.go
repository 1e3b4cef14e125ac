package winprob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func TestRegistry_PreloadedModels(t *testing.T) {
	r := NewRegistry()

	lol, err := r.Get(domain.GameLoL)
	require.NoError(t, err)
	assert.Equal(t, domain.GameLoL, lol.Game())

	dota, err := r.Get(domain.GameDota2)
	require.NoError(t, err)
	assert.Equal(t, domain.GameDota2, dota.Game())
}

func TestRegistry_UnknownGame(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(domain.Game("csgo"))
	assert.Error(t, err)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []domain.Game{domain.GameDota2, domain.GameLoL}, r.List())
}
