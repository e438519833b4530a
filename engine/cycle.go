package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// OpenCycle starts a new game cycle in the registration phase. Only one cycle
// may be open at a time; a finished cycle is displaced by the new one.
func (e *Engine) OpenCycle(name string, totalRounds, roundSeconds int) (*Cycle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cycle != nil && e.cycle.State != StateFinished {
		return nil, ErrCycleActive
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrValidation
	}
	if totalRounds <= 0 {
		totalRounds = e.cfg.TotalRounds
	}
	if roundSeconds <= 0 {
		roundSeconds = int(e.cfg.RoundTime / time.Second)
	}

	c := &Cycle{
		ID:           uuid.NewString(),
		Slug:         slug.Make(name),
		Name:         name,
		State:        StateRegistration,
		CreatedAt:    time.Now(),
		TotalRounds:  totalRounds,
		RoundSeconds: roundSeconds,
		Participants: make(map[int64]*Participant),
	}
	e.cycle = c
	return c, nil
}

// Register admits a participant to the open registration-phase cycle.
// Registering twice is a no-op returning the existing record. Once the lobby
// reaches quorum the countdown arms; it disarms again if the lobby shrinks.
func (e *Engine) Register(id int64, handle, displayName, avatarURL string) (*Participant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.cycle
	if c == nil {
		return nil, ErrNoCycle
	}
	if c.State != StateRegistration {
		return nil, ErrRegistrationClosed
	}
	if id <= 0 || strings.TrimSpace(displayName) == "" {
		return nil, ErrValidation
	}
	if p, ok := c.Participants[id]; ok {
		return p, nil
	}
	p := &Participant{
		ID:            id,
		Handle:        handle,
		DisplayName:   displayName,
		AvatarURL:     avatarURL,
		RegisteredAt:  time.Now(),
		facedHumans:   make(map[int64]bool),
		facedPersonas: make(map[string]bool),
	}
	c.Participants[id] = p
	c.order = append(c.order, id)

	if len(c.Participants) >= e.cfg.MinQuorum && c.RegClosesAt.IsZero() {
		c.RegClosesAt = time.Now().Add(e.cfg.RegCountdown)
	}
	return p, nil
}

// Withdraw removes a participant from the lobby before the cycle goes live.
func (e *Engine) Withdraw(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.cycle
	if c == nil {
		return ErrNoCycle
	}
	if c.State != StateRegistration {
		return ErrRegistrationClosed
	}
	if _, ok := c.Participants[id]; !ok {
		return ErrNotFound
	}
	delete(c.Participants, id)
	for i, pid := range c.order {
		if pid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	// fail closed: below quorum the countdown disarms
	if len(c.Participants) < e.cfg.MinQuorum {
		c.RegClosesAt = time.Time{}
	}
	return nil
}

// SetReady flags a participant as ready. When everyone in a quorate lobby is
// ready the cycle starts without waiting out the countdown.
func (e *Engine) SetReady(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.cycle
	if c == nil {
		return ErrNoCycle
	}
	if c.State != StateRegistration {
		return ErrRegistrationClosed
	}
	p, ok := c.Participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Ready = true
	e.maybeStartLocked(time.Now())
	return nil
}

// Tick drives every timer-based transition: the registration countdown, the
// round deadline, the force-lock ceiling, and the round-advance barrier. It is
// the single cancellation trigger of the engine and is invoked by the
// scheduler once a second.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.cycle
	if c == nil {
		return
	}

	switch c.State {
	case StateRegistration:
		e.maybeStartLocked(now)

	case StateLive:
		round := e.roundMatchesLocked(c, c.Round)

		// Deadline enforcement: lock every match whose own deadline passed,
		// whether or not its client called lock.
		for _, m := range round {
			if !m.Locked && !now.Before(m.Deadline) {
				e.lockLocked(c, m, now)
			}
		}
		// Hard ceiling: past the grace window nothing in the round may stay
		// open, so a crashed persona pipeline can never hold it hostage.
		if now.Sub(c.RoundDeadline) >= e.cfg.LockGrace {
			for _, m := range round {
				if !m.Locked {
					e.lockLocked(c, m, now)
				}
			}
		}

		allLocked := true
		for _, m := range round {
			if !m.Locked {
				allLocked = false
				break
			}
		}
		// An empty round (pool exhausted) still waits out its deadline.
		if len(round) == 0 && now.Before(c.RoundDeadline) {
			allLocked = false
		}
		if !allLocked {
			c.clearedAt = nil
			return
		}
		if c.clearedAt == nil {
			t := now
			c.clearedAt = &t
			return
		}
		if now.Sub(*c.clearedAt) < e.cfg.Intermission {
			return
		}
		if c.Round < c.TotalRounds {
			e.startRoundLocked(c, now)
		} else {
			e.finishLocked(c, now)
		}
	}
}

// maybeStartLocked promotes registration to live when the lobby qualifies:
// quorum plus an elapsed countdown, or quorum with every participant ready.
func (e *Engine) maybeStartLocked(now time.Time) {
	c := e.cycle
	if c == nil || c.State != StateRegistration {
		return
	}
	if len(c.Participants) < e.cfg.MinQuorum {
		return
	}
	countdownDone := !c.RegClosesAt.IsZero() && !now.Before(c.RegClosesAt)
	allReady := true
	for _, p := range c.Participants {
		if !p.Ready {
			allReady = false
			break
		}
	}
	if !countdownDone && !allReady {
		return
	}

	c.State = StateLive
	t := now
	c.StartedAt = &t
	e.startRoundLocked(c, now)
}

// startRoundLocked inserts every match of the next round and only then arms
// its deadline, so the deadline can never race late match creation.
func (e *Engine) startRoundLocked(c *Cycle, now time.Time) {
	c.Round++
	c.clearedAt = nil
	deadline := now.Add(time.Duration(c.RoundSeconds) * time.Second)

	for _, m := range e.pairRoundLocked(c, c.Round, now, deadline) {
		e.matches[m.ID] = m
	}
	c.RoundDeadline = deadline
}

// finishLocked terminates the cycle, builds its report, and drops the
// in-flight matches; the report is drained by the persistence layer.
func (e *Engine) finishLocked(c *Cycle, now time.Time) {
	c.State = StateFinished
	t := now
	c.FinishedAt = &t

	report := e.buildReportLocked(c)
	c.Leaderboard = report.Leaderboard
	e.finished = append(e.finished, report)

	for id, m := range e.matches {
		if m.CycleID == c.ID {
			delete(e.matches, id)
		}
	}
}

func (e *Engine) roundMatchesLocked(c *Cycle, round int) []*Match {
	var out []*Match
	for _, m := range e.matches {
		if m.CycleID == c.ID && m.Round == round {
			out = append(out, m)
		}
	}
	return out
}
