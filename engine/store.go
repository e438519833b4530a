package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxMessageLen = 500

// appendLocked adds one message to a match, assigning the server-side
// sequence number and a monotonic timestamp. Ordering is by receipt, never by
// anything the client claims.
func (e *Engine) appendLocked(m *Match, senderID int64, text string) Message {
	now := time.Now()
	if n := len(m.Messages); n > 0 && m.Messages[n-1].SentAt.After(now) {
		now = m.Messages[n-1].SentAt
	}
	m.seq++
	msg := Message{
		ID:       uuid.NewString(),
		SenderID: senderID,
		Text:     text,
		Seq:      m.seq,
		SentAt:   now,
	}
	m.Messages = append(m.Messages, msg)
	return msg
}

// mirrorLocked copies a message into the paired match of a human-human pair.
// A mirror that already locked keeps its transcript frozen.
func (e *Engine) mirrorLocked(m *Match, msg Message) {
	if m.MirrorID == "" {
		return
	}
	mirror, ok := e.matches[m.MirrorID]
	if !ok || mirror.Locked {
		return
	}
	mirror.seq++
	cp := msg
	cp.Seq = mirror.seq
	mirror.Messages = append(mirror.Messages, cp)
}

// AppendMessage records a chat line from a human sender. The sender must be
// the match's owner or, for human-vs-human pairs, the bound opponent (whose
// line lands on their own side and mirrors across).
func (e *Engine) AppendMessage(matchID string, senderID int64, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxMessageLen {
		return Message{}, ErrValidation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.matchLocked(matchID)
	if err != nil {
		return Message{}, err
	}

	// Resolve which side of the pair the sender owns.
	if senderID != m.OwnerID {
		if m.Opponent.Kind != OpponentHuman || m.Opponent.HumanID != senderID {
			return Message{}, ErrNotParticipant
		}
		mirror, ok := e.matches[m.MirrorID]
		if !ok {
			return Message{}, ErrNotFound
		}
		m = mirror
	}
	if m.Locked {
		return Message{}, ErrLocked
	}

	msg := e.appendLocked(m, senderID, text)
	e.mirrorLocked(m, msg)
	return msg, nil
}

// AppendAgentReply posts a reply on behalf of an externally controlled
// persona. Every check failure is a distinct reason: wrong slot or
// controller binding is forbidden, a non-external persona is not configured
// for control, and two consecutive bot lines are a turn-order violation.
// Legacy credentials carry no persona slug; an empty slug is accepted when
// the controller id alone matches the persona's binding.
func (e *Engine) AppendAgentReply(matchID, personaSlug string, controllerID int64, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxMessageLen {
		return Message{}, ErrValidation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.matchLocked(matchID)
	if err != nil {
		return Message{}, err
	}
	if m.Opponent.Kind != OpponentBot || m.Opponent.Persona == nil || !m.Opponent.Persona.External {
		return Message{}, ErrNotExternal
	}
	per := m.Opponent.Persona
	if personaSlug == "" {
		if per.ControllerID == 0 || per.ControllerID != controllerID {
			return Message{}, ErrForbidden
		}
	} else {
		if per.Slug != personaSlug {
			return Message{}, ErrForbidden
		}
		if per.ControllerID != 0 && per.ControllerID != controllerID {
			return Message{}, ErrForbidden
		}
	}
	if m.Locked {
		return Message{}, ErrLocked
	}
	if n := len(m.Messages); n > 0 && m.Messages[n-1].SenderID == 0 {
		return Message{}, ErrWrongTurn
	}
	return e.appendLocked(m, 0, text), nil
}

// SetVote is an idempotent pre-lock upsert: the client may toggle any number
// of times and the last write before the lock wins. The first vote's time
// feeds the decision-speed statistic.
func (e *Engine) SetVote(matchID string, participantID int64, v Vote) error {
	if v != VoteReal && v != VoteBot {
		return ErrValidation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.matchLocked(matchID)
	if err != nil {
		return err
	}
	if m.OwnerID != participantID {
		return ErrNotParticipant
	}
	if m.Locked {
		return ErrLocked
	}
	if m.FirstVoteAt == nil {
		t := time.Now()
		m.FirstVoteAt = &t
	}
	m.Vote = v
	return nil
}

// LockMatch is the client-initiated "lock my vote now" path. Redundant calls
// are harmless: only the first lock of a match has any effect.
func (e *Engine) LockMatch(matchID string, participantID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.matchLocked(matchID)
	if err != nil {
		return err
	}
	if m.OwnerID != participantID {
		return ErrNotParticipant
	}
	e.lockLocked(e.cycle, m, time.Now())
	return nil
}

// lockLocked flips a match to locked exactly once (compare-and-set on the
// flag) and triggers scoring on that first transition only.
func (e *Engine) lockLocked(c *Cycle, m *Match, now time.Time) bool {
	if m.Locked {
		return false
	}
	m.Locked = true
	e.scoreLocked(c, m, now)
	return true
}

// ListActiveFor returns the participant's current unlocked matches in stable
// round/slot order.
func (e *Engine) ListActiveFor(participantID int64) []MatchView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeViewsLocked(participantID)
}

func (e *Engine) activeViewsLocked(participantID int64) []MatchView {
	var out []MatchView
	for _, m := range e.matches {
		if m.OwnerID != participantID || m.Locked {
			continue
		}
		out = append(out, e.matchViewLocked(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

func (e *Engine) matchViewLocked(m *Match) MatchView {
	v := MatchView{
		ID:           m.ID,
		Round:        m.Round,
		Slot:         m.Slot,
		OpponentName: m.Opponent.DisplayName(),
		Deadline:     m.Deadline,
		Vote:         m.Vote,
		Locked:       m.Locked,
		Messages:     make([]MessageView, 0, len(m.Messages)),
	}
	for _, msg := range m.Messages {
		v.Messages = append(v.Messages, MessageView{
			ID:     msg.ID,
			Mine:   msg.SenderID == m.OwnerID,
			Text:   msg.Text,
			SentAt: msg.SentAt,
		})
	}
	return v
}

// Poll assembles the full polling payload for one participant. During the
// intermission between rounds the payload keeps serving the previous round's
// outcomes, so clients never see a bare empty state mid-cycle.
func (e *Engine) Poll(participantID int64) PollView {
	e.mu.Lock()
	defer e.mu.Unlock()

	view := PollView{
		ServerTime: time.Now(),
		Quorum:     e.cfg.MinQuorum,
	}
	c := e.cycle
	if c == nil {
		return view
	}

	view.Phase = c.State
	view.CycleID = c.ID
	view.CycleName = c.Name
	view.Round = c.Round
	view.TotalRounds = c.TotalRounds
	view.Players = len(c.Participants)
	if !c.RegClosesAt.IsZero() {
		t := c.RegClosesAt
		view.RegClosesAt = &t
	}

	p, registered := c.Participants[participantID]
	view.Registered = registered

	switch c.State {
	case StateLive:
		if registered {
			view.Active = e.activeViewsLocked(participantID)
			view.BetweenRounds = len(view.Active) == 0
			if view.BetweenRounds {
				for _, r := range p.Results {
					if r.Round == c.Round {
						view.LastRound = append(view.LastRound, r)
					}
				}
			}
		}
	case StateFinished:
		view.Leaderboard = c.Leaderboard
		if registered {
			view.LastRound = p.Results
		}
	}
	return view
}

// BotTurnsDue returns, and marks in flight, every internally driven persona
// slot that currently owes a reply: unlocked, not already dispatched, and the
// transcript is either empty (opening line) or ends with the human's message.
func (e *Engine) BotTurnsDue() []BotTurn {
	e.mu.Lock()
	defer e.mu.Unlock()

	var due []BotTurn
	for _, m := range e.matches {
		if m.Locked || m.botPending {
			continue
		}
		if m.Opponent.Kind != OpponentBot || m.Opponent.Persona == nil || m.Opponent.Persona.External {
			continue
		}
		if n := len(m.Messages); n > 0 && m.Messages[n-1].SenderID == 0 {
			continue
		}
		m.botPending = true
		transcript := make([]Message, len(m.Messages))
		copy(transcript, m.Messages)
		due = append(due, BotTurn{
			MatchID:    m.ID,
			Persona:    *m.Opponent.Persona,
			Transcript: transcript,
		})
	}
	return due
}

// AppendBotReply lands a generated (or filler) persona line produced for a
// turn handed out by BotTurnsDue. The in-flight mark clears either way; a
// reply that raced the lock is simply dropped with ErrLocked.
func (e *Engine) AppendBotReply(matchID, text string) (Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.matchLocked(matchID)
	if err != nil {
		return Message{}, err
	}
	m.botPending = false
	if m.Locked {
		return Message{}, ErrLocked
	}
	if n := len(m.Messages); n > 0 && m.Messages[n-1].SenderID == 0 {
		return Message{}, ErrWrongTurn
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = e.cfg.ReplyFiller
	}
	return e.appendLocked(m, 0, text), nil
}
