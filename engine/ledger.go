package engine

import (
	"sort"
	"time"
)

// Humanity verification bounds. Accuracy must beat random noticeably, and the
// average decision latency has to sit inside the plausible-human window:
// faster suggests a script, slower suggests abandonment.
const (
	humanityMinAccuracyPct = 60
	humanityMinLatencyMS   = 500
	humanityMaxLatencyMS   = 240_000
)

// VerifyHumanityScore reports whether a participant's cycle performance
// clears the humanity threshold.
func VerifyHumanityScore(correct, total int, avgResponseMS int64) bool {
	if total == 0 {
		return false
	}
	accuracy := correct * 100 / total
	return accuracy > humanityMinAccuracyPct &&
		avgResponseMS > humanityMinLatencyMS &&
		avgResponseMS < humanityMaxLatencyMS
}

// DeceptionRating is the percentage of interactions in which a persona passed
// as human.
func DeceptionRating(fooled, interactions int) int {
	if interactions == 0 {
		return 0
	}
	return fooled * 100 / interactions
}

// scoreLocked runs once per match, on the locking transition. It freezes the
// vote that was current at that instant, computes correctness against the
// opponent's actual type, and appends the round result to the owner's
// history. A never-cast vote scores as incorrect.
func (e *Engine) scoreLocked(c *Cycle, m *Match, now time.Time) {
	voted := m.Vote != VoteNone
	correct := voted && m.Vote == m.Opponent.Truth()
	m.Correct = &correct

	if c == nil {
		return
	}
	p, ok := c.Participants[m.OwnerID]
	if !ok {
		return
	}

	var decisionMS int64
	if m.FirstVoteAt != nil {
		decisionMS = m.FirstVoteAt.Sub(m.CreatedAt).Milliseconds()
	}
	r := RoundResult{
		Round:        m.Round,
		Slot:         m.Slot,
		OpponentName: m.Opponent.DisplayName(),
		OpponentKind: m.Opponent.Kind,
		Vote:         m.Vote,
		Voted:        voted,
		Correct:      correct,
		DecisionMS:   decisionMS,
	}
	if m.Opponent.Kind == OpponentBot && m.Opponent.Persona != nil {
		r.PersonaSlug = m.Opponent.Persona.Slug
	}
	p.Results = append(p.Results, r)
	if correct {
		p.Score++
	}
}

// buildReportLocked turns a finished cycle into its persisted form: the
// ranked leaderboard, per-persona deception stats, and every transcript.
func (e *Engine) buildReportLocked(c *Cycle) *CycleReport {
	report := &CycleReport{
		CycleID:    c.ID,
		Slug:       c.Slug,
		Name:       c.Name,
		Rounds:     c.TotalRounds,
		FinishedAt: time.Now(),
		Personas:   make(map[string]PersonaStats),
	}
	if c.StartedAt != nil {
		report.StartedAt = *c.StartedAt
	}
	if c.FinishedAt != nil {
		report.FinishedAt = *c.FinishedAt
	}

	for _, m := range e.matches {
		if m.CycleID != c.ID {
			continue
		}
		am := ArchivedMatch{
			ID:           m.ID,
			Round:        m.Round,
			Slot:         m.Slot,
			OwnerID:      m.OwnerID,
			OpponentName: m.Opponent.DisplayName(),
			OpponentKind: m.Opponent.Kind,
			Vote:         m.Vote,
			Voted:        m.Vote != VoteNone,
			Messages:     m.Messages,
		}
		if m.Correct != nil {
			am.Correct = *m.Correct
		}
		if m.Opponent.Kind == OpponentBot && m.Opponent.Persona != nil {
			am.PersonaSlug = m.Opponent.Persona.Slug
			st := report.Personas[am.PersonaSlug]
			st.Slug = am.PersonaSlug
			st.DisplayName = m.Opponent.Persona.DisplayName
			st.Interactions++
			if m.Vote == VoteReal {
				st.Fooled++
			}
			st.Rating = DeceptionRating(st.Fooled, st.Interactions)
			report.Personas[am.PersonaSlug] = st
		}
		report.Matches = append(report.Matches, am)
	}
	sort.Slice(report.Matches, func(i, j int) bool {
		a, b := report.Matches[i], report.Matches[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		return a.Slot < b.Slot
	})

	report.Leaderboard = rankParticipants(c)
	return report
}

// rankParticipants orders by accuracy, breaking ties by fewer votes cast and
// then by earlier registration.
func rankParticipants(c *Cycle) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(c.Participants))
	regAt := make(map[int64]time.Time, len(c.Participants))

	for _, p := range c.Participants {
		var votes int
		var latencySum int64
		for _, r := range p.Results {
			if r.Voted {
				votes++
				latencySum += r.DecisionMS
			}
		}
		var avgMS int64
		if votes > 0 {
			avgMS = latencySum / int64(votes)
		}
		row := LeaderboardRow{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Correct:       p.Score,
			Total:         len(p.Results),
			VotesCast:     votes,
			AvgDecisionMS: avgMS,
		}
		if row.Total > 0 {
			row.Accuracy = float64(row.Correct) / float64(row.Total)
		}
		row.VerifiedHuman = VerifyHumanityScore(row.Correct, row.Total, avgMS)
		rows = append(rows, row)
		regAt[p.ID] = p.RegisteredAt
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Accuracy != rows[j].Accuracy {
			return rows[i].Accuracy > rows[j].Accuracy
		}
		if rows[i].VotesCast != rows[j].VotesCast {
			return rows[i].VotesCast < rows[j].VotesCast
		}
		return regAt[rows[i].ParticipantID].Before(regAt[rows[j].ParticipantID])
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
