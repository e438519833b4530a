package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCycle_SingleActiveCycle(t *testing.T) {
	e := newTestEngine()

	c, err := e.OpenCycle("Spring Showdown", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "spring-showdown", c.Slug)
	assert.Equal(t, 3, c.TotalRounds, "operator omitted rounds, config default applies")
	assert.Equal(t, 90, c.RoundSeconds)

	_, err = e.OpenCycle("Second", 0, 0)
	assert.ErrorIs(t, err, ErrCycleActive)

	_, err = e.OpenCycle("   ", 0, 0)
	assert.ErrorIs(t, err, ErrCycleActive, "active-cycle check precedes validation")
}

func TestRegister_QuorumArmsAndWithdrawDisarms(t *testing.T) {
	e := newTestEngine()
	_, err := e.OpenCycle("Lobby", 0, 0)
	require.NoError(t, err)
	c := e.cycle

	for i := int64(1); i <= 3; i++ {
		_, err := e.Register(i, "h", "Player", "")
		require.NoError(t, err)
	}
	assert.True(t, c.RegClosesAt.IsZero(), "below quorum no countdown")

	_, err = e.Register(4, "h", "Player", "")
	require.NoError(t, err)
	assert.False(t, c.RegClosesAt.IsZero(), "quorum arms the countdown")
	armed := c.RegClosesAt

	// Idempotent re-register does not re-arm.
	_, err = e.Register(4, "h", "Player", "")
	require.NoError(t, err)
	assert.Equal(t, armed, c.RegClosesAt)

	// Dropping below quorum disarms; the countdown restarts on re-quorum.
	require.NoError(t, e.Withdraw(4))
	assert.True(t, c.RegClosesAt.IsZero())

	assert.ErrorIs(t, e.Withdraw(99), ErrNotFound)
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEngine()

	_, err := e.Register(1, "h", "Player", "")
	assert.ErrorIs(t, err, ErrNoCycle)

	_, err = e.OpenCycle("Lobby", 0, 0)
	require.NoError(t, err)

	_, err = e.Register(0, "h", "Player", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.Register(1, "h", "  ", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTick_CountdownStartsCycle(t *testing.T) {
	e := newTestEngine()
	_, err := e.OpenCycle("Lobby", 0, 0)
	require.NoError(t, err)
	for i := int64(1); i <= 4; i++ {
		_, err := e.Register(i, "h", "Player", "")
		require.NoError(t, err)
	}
	c := e.cycle

	e.Tick(time.Now())
	assert.Equal(t, StateRegistration, c.State, "countdown not yet elapsed")

	e.Tick(c.RegClosesAt.Add(time.Second))
	assert.Equal(t, StateLive, c.State)
	assert.Equal(t, 1, c.Round)
	assert.NotNil(t, c.StartedAt)

	// Registration is closed once live.
	_, err = e.Register(5, "h", "Latecomer", "")
	assert.ErrorIs(t, err, ErrRegistrationClosed)
	assert.ErrorIs(t, e.Withdraw(1), ErrRegistrationClosed)
}

func TestSetReady_AllReadyStartsEarly(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 4)
	_, err := e.OpenCycle("Lobby", 0, 0)
	require.NoError(t, err)
	for i := int64(1); i <= 4; i++ {
		_, err := e.Register(i, "h", "Player", "")
		require.NoError(t, err)
	}
	c := e.cycle

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, e.SetReady(i))
	}
	assert.Equal(t, StateRegistration, c.State)

	require.NoError(t, e.SetReady(4))
	assert.Equal(t, StateLive, c.State, "unanimous ready skips the countdown")
}

func TestTick_ForceLockScoresNoVoteIncorrect(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)
	c := startedCycle(t, e, 4)

	// Nobody votes, nobody locks. Past deadline+grace every match must be
	// locked and scored incorrect.
	e.Tick(c.RoundDeadline.Add(e.cfg.LockGrace))

	for _, m := range e.roundMatchesLocked(c, 1) {
		assert.True(t, m.Locked)
		require.NotNil(t, m.Correct)
		assert.False(t, *m.Correct, "a never-cast vote scores as incorrect")
	}
	for _, p := range c.Participants {
		require.Len(t, p.Results, 2)
		for _, r := range p.Results {
			assert.False(t, r.Voted)
			assert.Equal(t, VoteNone, r.Vote)
			assert.Zero(t, r.DecisionMS)
		}
	}
}

func TestTick_BarrierHoldsUntilEverySlotLocks(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)
	c := startedCycle(t, e, 4)

	round1 := e.roundMatchesLocked(c, 1)
	for _, m := range round1[:len(round1)-1] {
		require.NoError(t, e.LockMatch(m.ID, m.OwnerID))
	}
	now := time.Now()
	e.Tick(now)
	e.Tick(now.Add(time.Second))
	assert.Equal(t, 1, c.Round, "one open slot holds the whole round")

	last := round1[len(round1)-1]
	require.NoError(t, e.LockMatch(last.ID, last.OwnerID))
	e.Tick(now.Add(2 * time.Second))
	e.Tick(now.Add(3 * time.Second))
	assert.Equal(t, 2, c.Round, "barrier cleared, next round starts after intermission")
}

func TestCycle_FinishServesLeaderboardAndDrainsOnce(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)
	c := startedCycle(t, e, 4)

	for round := 1; round <= c.TotalRounds; round++ {
		for _, m := range e.roundMatchesLocked(c, c.Round) {
			require.NoError(t, e.SetVote(m.ID, m.OwnerID, m.Opponent.Truth()))
		}
		lockAll(t, e, c)
	}
	require.Equal(t, StateFinished, c.State)
	require.NotNil(t, c.FinishedAt)

	view := e.Poll(1)
	assert.Equal(t, StateFinished, view.Phase)
	require.Len(t, view.Leaderboard, 4)
	assert.Equal(t, 1, view.Leaderboard[0].Rank)
	for _, row := range view.Leaderboard {
		assert.Equal(t, row.Total, row.Correct, "everyone voted the truth")
		assert.InDelta(t, 1.0, row.Accuracy, 1e-9)
	}
	require.Len(t, view.LastRound, 2*c.TotalRounds)

	reports := e.DrainFinished()
	require.Len(t, reports, 1)
	assert.Equal(t, c.ID, reports[0].CycleID)
	assert.Empty(t, e.DrainFinished(), "reports hand over exactly once")

	// In-flight matches are gone once the cycle finalizes.
	assert.Empty(t, e.roundMatchesLocked(c, c.TotalRounds))

	// A finished cycle no longer blocks the next one.
	_, err := e.OpenCycle("Next", 0, 0)
	assert.NoError(t, err)
}

func TestPoll_PhasesAndZeroGapContract(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)

	view := e.Poll(1)
	assert.Empty(t, view.Phase, "no cycle yet")
	assert.Equal(t, 4, view.Quorum)

	_, err := e.OpenCycle("Poll Test", 0, 0)
	require.NoError(t, err)
	for i := int64(1); i <= 4; i++ {
		_, err := e.Register(i, "h", "Player", "")
		require.NoError(t, err)
	}
	view = e.Poll(1)
	assert.Equal(t, StateRegistration, view.Phase)
	assert.True(t, view.Registered)
	assert.Equal(t, 4, view.Players)
	require.NotNil(t, view.RegClosesAt)

	view = e.Poll(99)
	assert.False(t, view.Registered)

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, e.SetReady(i))
	}
	c := e.cycle
	view = e.Poll(1)
	assert.Equal(t, StateLive, view.Phase)
	require.Len(t, view.Active, 2)
	assert.False(t, view.BetweenRounds)

	// Lock both of player 1's matches: they sit between rounds and see the
	// round's outcomes while the rest of the lobby finishes.
	for _, mv := range view.Active {
		require.NoError(t, e.SetVote(mv.ID, 1, VoteBot))
		require.NoError(t, e.LockMatch(mv.ID, 1))
	}
	view = e.Poll(1)
	assert.Empty(t, view.Active)
	assert.True(t, view.BetweenRounds)
	require.Len(t, view.LastRound, 2)
	for _, r := range view.LastRound {
		assert.Equal(t, c.Round, r.Round)
		assert.True(t, r.Voted)
	}
}
