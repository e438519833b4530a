package engine

import (
	"time"

	"github.com/google/uuid"
)

// pairRoundLocked computes the full set of matches for one round.
//
// Every participant gets up to two slots with distinct opponents. Human
// opponents are preferred: a greedy pass over a shuffled participant order
// pairs each open slot with a random eligible human (never faced this cycle,
// still has an open slot, not already the other slot's opponent). Slots that
// cannot be filled with a novel human fall back to a persona the participant
// has not faced this cycle; when even the persona pool is exhausted the slot
// stays empty; "opponent unavailable" is a partial round, not an error.
func (e *Engine) pairRoundLocked(c *Cycle, round int, now, deadline time.Time) []*Match {
	order := make([]int64, len(c.order))
	copy(order, c.order)
	e.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	need := make(map[int64]int, len(order))
	slotOf := make(map[int64]int, len(order))
	pairedNow := make(map[int64]map[int64]bool, len(order))
	for _, id := range order {
		need[id] = slotsPerRound
		pairedNow[id] = make(map[int64]bool)
	}

	var out []*Match

	newMatch := func(owner *Participant, opp Opponent) *Match {
		slotOf[owner.ID]++
		need[owner.ID]--
		return &Match{
			ID:        uuid.NewString(),
			CycleID:   c.ID,
			Round:     round,
			Slot:      slotOf[owner.ID],
			OwnerID:   owner.ID,
			Opponent:  opp,
			CreatedAt: now,
			Deadline:  deadline,
		}
	}

	pairHumans := func(p, q *Participant) {
		mp := newMatch(p, Opponent{Kind: OpponentHuman, HumanID: q.ID, HumanName: q.DisplayName})
		mq := newMatch(q, Opponent{Kind: OpponentHuman, HumanID: p.ID, HumanName: p.DisplayName})
		mp.MirrorID = mq.ID
		mq.MirrorID = mp.ID
		p.facedHumans[q.ID] = true
		q.facedHumans[p.ID] = true
		pairedNow[p.ID][q.ID] = true
		pairedNow[q.ID][p.ID] = true
		out = append(out, mp, mq)
	}

	assignPersona := func(p *Participant) bool {
		var pool []*Persona
		for _, per := range e.personas {
			if !p.facedPersonas[per.Slug] {
				pool = append(pool, per)
			}
		}
		if len(pool) == 0 {
			return false
		}
		per := pool[e.rng.Intn(len(pool))]
		p.facedPersonas[per.Slug] = true
		out = append(out, newMatch(p, Opponent{Kind: OpponentBot, Persona: per}))
		return true
	}

	for _, id := range order {
		p := c.Participants[id]
		if p == nil {
			continue
		}
		// humans first
		for need[id] > 0 {
			var eligible []*Participant
			for _, qid := range order {
				if qid == id || need[qid] <= 0 {
					continue
				}
				if p.facedHumans[qid] || pairedNow[id][qid] {
					continue
				}
				eligible = append(eligible, c.Participants[qid])
			}
			if len(eligible) == 0 {
				break
			}
			pairHumans(p, eligible[e.rng.Intn(len(eligible))])
		}
		// persona fill for whatever remains
		for need[id] > 0 {
			if !assignPersona(p) {
				need[id] = 0 // pool exhausted, partial slot
			}
		}
	}
	return out
}
