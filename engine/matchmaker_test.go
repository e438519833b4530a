package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return New(Config{
		MinQuorum:    4,
		RegCountdown: time.Minute,
		TotalRounds:  3,
		RoundTime:    90 * time.Second,
		LockGrace:    10 * time.Second,
		Intermission: 100 * time.Millisecond,
	})
}

func addPersonas(e *Engine, n int) {
	for i := 1; i <= n; i++ {
		e.RegisterPersona(NewPersona(fmt.Sprintf("Persona %d", i), "test-model", "", false, 0))
	}
}

// startedCycle opens a cycle, registers players 1..n, and readies everyone so
// the cycle starts without waiting out the countdown.
func startedCycle(t *testing.T, e *Engine, players int) *Cycle {
	t.Helper()
	_, err := e.OpenCycle("Test Cycle", 3, 90)
	require.NoError(t, err)
	for i := 1; i <= players; i++ {
		_, err := e.Register(int64(i), fmt.Sprintf("p%d", i), fmt.Sprintf("Player %d", i), "")
		require.NoError(t, err)
	}
	for i := 1; i <= players; i++ {
		require.NoError(t, e.SetReady(int64(i)))
	}
	require.Equal(t, StateLive, e.cycle.State)
	require.Equal(t, 1, e.cycle.Round)
	return e.cycle
}

// ownedMatches returns the raw matches of one participant in the current round.
func ownedMatches(e *Engine, c *Cycle, owner int64) []*Match {
	var out []*Match
	for _, m := range e.matches {
		if m.CycleID == c.ID && m.Round == c.Round && m.OwnerID == owner {
			out = append(out, m)
		}
	}
	return out
}

// lockAll locks every match of the current round and ticks past the
// intermission so the next transition fires.
func lockAll(t *testing.T, e *Engine, c *Cycle) {
	t.Helper()
	for _, m := range e.roundMatchesLocked(c, c.Round) {
		_ = e.LockMatch(m.ID, m.OwnerID)
	}
	now := time.Now()
	e.Tick(now)
	e.Tick(now.Add(time.Second))
}

func TestPairing_TwoSlotsDistinctOpponents(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)
	c := startedCycle(t, e, 4)

	for id := int64(1); id <= 4; id++ {
		matches := ownedMatches(e, c, id)
		require.Len(t, matches, 2, "participant %d should hold two slots", id)

		a, b := matches[0], matches[1]
		assert.NotEqual(t, a.Slot, b.Slot)
		assert.NotEqual(t, a.Opponent.DisplayName(), b.Opponent.DisplayName())
		for _, m := range matches {
			assert.NotEqual(t, id, m.Opponent.HumanID, "participant paired with self")
		}
	}
}

func TestPairing_MirrorLinksAreSymmetric(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)
	c := startedCycle(t, e, 4)

	for _, m := range e.roundMatchesLocked(c, c.Round) {
		if m.Opponent.Kind != OpponentHuman {
			assert.Empty(t, m.MirrorID, "bot matches have no mirror")
			continue
		}
		mirror, ok := e.matches[m.MirrorID]
		require.True(t, ok, "mirror of %s missing", m.ID)
		assert.Equal(t, m.ID, mirror.MirrorID)
		assert.Equal(t, m.OwnerID, mirror.Opponent.HumanID)
		assert.Equal(t, m.Opponent.HumanID, mirror.OwnerID)
	}
}

func TestPairing_NoRepeatOpponentsAcrossCycle(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)
	c := startedCycle(t, e, 4)

	humanSeen := make(map[int64]map[int64]int)
	personaSeen := make(map[int64]map[string]int)
	for id := int64(1); id <= 4; id++ {
		humanSeen[id] = make(map[int64]int)
		personaSeen[id] = make(map[string]int)
	}

	for round := 1; round <= c.TotalRounds; round++ {
		require.Equal(t, round, c.Round)
		for id := int64(1); id <= 4; id++ {
			for _, m := range ownedMatches(e, c, id) {
				if m.Opponent.Kind == OpponentHuman {
					humanSeen[id][m.Opponent.HumanID]++
				} else {
					personaSeen[id][m.Opponent.Persona.Slug]++
				}
			}
		}
		lockAll(t, e, c)
	}
	require.Equal(t, StateFinished, c.State)

	for id := int64(1); id <= 4; id++ {
		for opp, n := range humanSeen[id] {
			assert.Equal(t, 1, n, "participant %d faced human %d %d times", id, opp, n)
		}
		for slug, n := range personaSeen[id] {
			assert.Equal(t, 1, n, "participant %d faced persona %s %d times", id, slug, n)
		}
	}
}

func TestPairing_ExhaustedPoolLeavesSlotEmpty(t *testing.T) {
	e := New(Config{MinQuorum: 2, RegCountdown: time.Minute, TotalRounds: 1, RoundTime: 90 * time.Second})
	// no personas at all
	_, err := e.OpenCycle("Tiny", 1, 90)
	require.NoError(t, err)
	_, err = e.Register(1, "a", "Alice", "")
	require.NoError(t, err)
	_, err = e.Register(2, "b", "Bob", "")
	require.NoError(t, err)
	require.NoError(t, e.SetReady(1))
	require.NoError(t, e.SetReady(2))

	c := e.cycle
	require.Equal(t, StateLive, c.State)

	// One human pairing is possible; the second slot of each player has no
	// novel opponent and stays empty.
	assert.Len(t, ownedMatches(e, c, 1), 1)
	assert.Len(t, ownedMatches(e, c, 2), 1)
}
