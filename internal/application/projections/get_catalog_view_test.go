package projections

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signup/internal/domain/activity"
	"signup/internal/domain/session"
)

func sampleCatalog() activity.Catalog {
	return activity.Catalog{
		"Chess Club": {
			Name:            "Chess Club",
			Description:     "Strategy",
			Schedule:        "Fridays",
			MaxParticipants: 2,
			Participants:    []string{"a@x.com", "b@x.com"},
		},
		"Art Studio": {
			Name:            "Art Studio",
			Description:     "Painting",
			Schedule:        "Wednesdays",
			MaxParticipants: 10,
			Participants:    []string{},
		},
	}
}

// TestBuildCatalogView_SpotsLeft tests the full-roster case.
func TestBuildCatalogView_SpotsLeft(t *testing.T) {
	view := BuildCatalogView(sampleCatalog(), session.Anonymous())
	require.Len(t, view.Cards, 2)

	assert.Equal(t, "Art Studio", view.Cards[0].Name)
	assert.Equal(t, 10, view.Cards[0].SpotsLeft)
	assert.False(t, view.Cards[0].HasParticipants())

	assert.Equal(t, "Chess Club", view.Cards[1].Name)
	assert.Equal(t, 0, view.Cards[1].SpotsLeft)
	assert.True(t, view.Cards[1].Full)
}

// TestBuildCatalogView_AnonymousHasNoControls tests the hide policy.
func TestBuildCatalogView_AnonymousHasNoControls(t *testing.T) {
	view := BuildCatalogView(sampleCatalog(), session.Anonymous())
	assert.False(t, view.CanManage)
	for _, card := range view.Cards {
		assert.False(t, card.CanRegister, card.Name)
		for _, p := range card.Participants {
			assert.False(t, p.CanRemove, p.Email)
		}
	}
}

func TestBuildCatalogView_TeacherHasControls(t *testing.T) {
	view := BuildCatalogView(sampleCatalog(), session.Teacher("Ms. Rivera"))
	assert.True(t, view.CanManage)
	assert.Equal(t, "Logged in as Ms. Rivera", view.TeacherLabel)
	for _, card := range view.Cards {
		assert.True(t, card.CanRegister, card.Name)
		for _, p := range card.Participants {
			assert.True(t, p.CanRemove, p.Email)
		}
	}
}

func TestBuildCatalogView_Deterministic(t *testing.T) {
	a := BuildCatalogView(sampleCatalog(), session.Teacher("T"))
	b := BuildCatalogView(sampleCatalog(), session.Teacher("T"))
	assert.Equal(t, a, b)
}

func TestBuildCatalogView_NilCatalog(t *testing.T) {
	view := BuildCatalogView(nil, session.Anonymous())
	assert.Empty(t, view.Cards)
}

type mockCatalogBackend struct {
	catalog activity.Catalog
	err     error
}

// Activities implements CatalogBackend for testing.
func (m *mockCatalogBackend) Activities(ctx context.Context) (activity.Catalog, error) {
	return m.catalog, m.err
}

func TestQueryGetCatalog(t *testing.T) {
	t.Run("drops invalid entries", func(t *testing.T) {
		c := sampleCatalog()
		c["Broken"] = activity.Activity{Name: "Broken", MaxParticipants: -3}
		got, err := QueryGetCatalog(context.Background(), GetCatalogDeps{Backend: &mockCatalogBackend{catalog: c}})
		require.NoError(t, err)
		assert.Equal(t, []string{"Art Studio", "Chess Club"}, got.Names())
	})

	t.Run("propagates backend failure", func(t *testing.T) {
		_, err := QueryGetCatalog(context.Background(), GetCatalogDeps{Backend: &mockCatalogBackend{err: errors.New("down")}})
		assert.Error(t, err)
	})
}
