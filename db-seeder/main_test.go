package main

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlhhhh/Openhouse/internal/profile"
)

func TestGenerateUsers(t *testing.T) {
	c := cfg{Count: 50, Seed: 7, MatchingRate: 0.3, MatchedRate: 0.3}

	a := generateUsers(rand.New(rand.NewSource(c.Seed)), c)
	b := generateUsers(rand.New(rand.NewSource(c.Seed)), c)
	require.Len(t, a, 50)
	assert.Equal(t, a, b, "same seed must give the same users")

	assert.Equal(t, "user1@test.local", a[0].Email)
	assert.Equal(t, profile.StatusAvailable, a[1].Status)

	emails := map[string]bool{}
	for _, u := range a {
		assert.False(t, emails[u.Email], "duplicate email %s", u.Email)
		emails[u.Email] = true
		assert.NotEmpty(t, u.Tags)
		assert.LessOrEqual(t, len(u.Tags), 5)
		assert.NoError(t, profile.ValidateTags(u.Tags))
	}
}

func TestGenerateResults(t *testing.T) {
	c := cfg{Count: 20, Seed: 1, MatchedRate: 1}
	r := rand.New(rand.NewSource(c.Seed))
	users := generateUsers(r, c)
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	results := generateResults(r, users, now, 0)
	// The two fixed test users stay available.
	assert.Len(t, results, len(users)-2)
	for _, res := range results {
		assert.Equal(t, "20240305", res.Round)
		assert.NotEqual(t, res.User, res.Partner)
		assert.GreaterOrEqual(t, res.Score, 10)
		assert.LessOrEqual(t, res.Score, 100)
	}
}

func TestValidate(t *testing.T) {
	good := cfg{DSN: "postgres://x", Count: 10, MatchingRate: 0.2, MatchedRate: 0.2}
	assert.NoError(t, good.validate())

	bad := good
	bad.DSN = ""
	assert.Error(t, bad.validate())

	bad = good
	bad.MatchedRate = 0.9
	assert.Error(t, bad.validate())

	bad = good
	bad.Count = 1
	assert.Error(t, bad.validate())
}
