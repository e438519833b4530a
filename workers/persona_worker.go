// workers/persona_worker.go
package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"detective-arena/engine"
	"detective-arena/llm"
)

// PersonaWorker drives the internally-hosted personas: it polls the engine
// for bot slots owed a reply and generates each one on its own goroutine so a
// slow model only delays its own match. Generation failures fall back to a
// filler line rather than leaving the human waiting forever.
type PersonaWorker struct {
	engine   *engine.Engine
	bridge   *llm.PersonaBridge
	interval time.Duration
}

func NewPersonaWorker(eng *engine.Engine, bridge *llm.PersonaBridge) *PersonaWorker {
	return &PersonaWorker{
		engine:   eng,
		bridge:   bridge,
		interval: 1 * time.Second,
	}
}

func (w *PersonaWorker) Start(ctx context.Context) {
	log.Println("🤖 Starting Persona Worker (engine → llm bridge)…")
	go w.run(ctx)
}

func (w *PersonaWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, turn := range w.engine.BotTurnsDue() {
				go w.reply(ctx, turn)
			}
		case <-ctx.Done():
			log.Println("⏹️ Persona Worker stopped")
			return
		}
	}
}

func (w *PersonaWorker) reply(ctx context.Context, turn engine.BotTurn) {
	replyCtx, cancel := context.WithTimeout(ctx, llm.ReplyTimeout())
	defer cancel()

	text, err := w.bridge.Reply(replyCtx, turn.Persona, turn.Transcript)
	if err != nil {
		log.Printf("⚠️ [PERSONA] Generation failed for %s in match %s: %v", turn.Persona.Slug, turn.MatchID, err)
		text = "" // engine substitutes the filler line
	}

	if _, err := w.engine.AppendBotReply(turn.MatchID, text); err != nil {
		// A reply that raced the lock or cycle teardown is dropped silently.
		if errors.Is(err, engine.ErrLocked) || errors.Is(err, engine.ErrNotFound) {
			return
		}
		log.Printf("⚠️ [PERSONA] Reply discarded for match %s: %v", turn.MatchID, err)
	}
}
