package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyHumanityScore(t *testing.T) {
	tests := []struct {
		name    string
		correct int
		total   int
		avgMS   int64
		want    bool
	}{
		{"no matches at all", 0, 0, 1000, false},
		{"accuracy above threshold, plausible speed", 4, 6, 3000, true},
		{"exactly 60 percent is not enough", 3, 5, 3000, false},
		{"perfect but suspiciously fast", 6, 6, 500, false},
		{"perfect but abandoned-slow", 6, 6, 240_000, false},
		{"just inside the latency window", 5, 6, 501, true},
		{"upper latency edge", 5, 6, 239_999, true},
		{"coin-flip accuracy", 3, 6, 3000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyHumanityScore(tt.correct, tt.total, tt.avgMS))
		})
	}
}

func TestDeceptionRating(t *testing.T) {
	assert.Equal(t, 0, DeceptionRating(0, 0))
	assert.Equal(t, 0, DeceptionRating(0, 5))
	assert.Equal(t, 50, DeceptionRating(3, 6))
	assert.Equal(t, 100, DeceptionRating(4, 4))
	assert.Equal(t, 33, DeceptionRating(1, 3), "integer percentage truncates")
}

func participantWithResults(id int64, name string, registeredAt time.Time, results []RoundResult) *Participant {
	p := &Participant{
		ID:            id,
		DisplayName:   name,
		RegisteredAt:  registeredAt,
		Results:       results,
		facedHumans:   map[int64]bool{},
		facedPersonas: map[string]bool{},
	}
	for _, r := range results {
		if r.Correct {
			p.Score++
		}
	}
	return p
}

func res(correct, voted bool, decisionMS int64) RoundResult {
	v := VoteNone
	if voted {
		v = VoteReal
	}
	return RoundResult{Round: 1, Vote: v, Voted: voted, Correct: correct, DecisionMS: decisionMS}
}

func TestRankParticipants_TieBreaks(t *testing.T) {
	base := time.Now()
	c := &Cycle{Participants: map[int64]*Participant{}}

	// Identical accuracy; B cast fewer votes so B ranks above A.
	c.Participants[1] = participantWithResults(1, "A", base, []RoundResult{
		res(true, true, 2000), res(false, true, 2000),
	})
	c.Participants[2] = participantWithResults(2, "B", base.Add(time.Second), []RoundResult{
		res(true, true, 2000), res(false, false, 0),
	})
	// Higher accuracy ranks first regardless.
	c.Participants[3] = participantWithResults(3, "C", base.Add(2*time.Second), []RoundResult{
		res(true, true, 2000), res(true, true, 2000),
	})
	// Same accuracy and votes as A but registered earlier, so ranks above A.
	c.Participants[4] = participantWithResults(4, "D", base.Add(-time.Minute), []RoundResult{
		res(true, true, 2000), res(false, true, 2000),
	})

	rows := rankParticipants(c)
	require.Len(t, rows, 4)
	assert.Equal(t, int64(3), rows[0].ParticipantID)
	assert.Equal(t, int64(2), rows[1].ParticipantID)
	assert.Equal(t, int64(4), rows[2].ParticipantID)
	assert.Equal(t, int64(1), rows[3].ParticipantID)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Rank)
	}

	// Latency averages only over cast votes.
	assert.Equal(t, int64(2000), rows[1].AvgDecisionMS)
	assert.Equal(t, 1, rows[1].VotesCast)
}

func TestBuildReport_PersonaStatsAndArchive(t *testing.T) {
	e := newTestEngine()
	addPersonas(e, 8)
	c := startedCycle(t, e, 4)

	// Every bot match gets fooled (voted real); human matches voted correctly.
	for _, m := range e.roundMatchesLocked(c, 1) {
		require.NoError(t, e.SetVote(m.ID, m.OwnerID, VoteReal))
	}
	e.Tick(c.RoundDeadline.Add(e.cfg.LockGrace))

	report := e.buildReportLocked(c)
	require.NotNil(t, report)
	assert.Equal(t, c.ID, report.CycleID)
	assert.Equal(t, c.Slug, report.Slug)

	botMatches := 0
	for _, am := range report.Matches {
		if am.OpponentKind == OpponentBot {
			botMatches++
			require.NotEmpty(t, am.PersonaSlug)
			assert.False(t, am.Correct, "voting real on a bot is wrong")
		} else {
			assert.True(t, am.Correct)
		}
	}
	assert.Len(t, report.Matches, len(report.Leaderboard)*2)

	fooledTotal := 0
	for slug, st := range report.Personas {
		assert.Equal(t, slug, st.Slug)
		assert.Equal(t, st.Interactions, st.Fooled, "every bot interaction fooled its judge")
		assert.Equal(t, 100, st.Rating)
		fooledTotal += st.Fooled
	}
	assert.Equal(t, botMatches, fooledTotal)
}
