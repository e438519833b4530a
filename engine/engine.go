package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const slotsPerRound = 2

// Config carries the tunables of a game cycle. Zero values fall back to the
// defaults below so tests can construct partial configs.
type Config struct {
	MinQuorum    int           // participants needed before the countdown arms
	RegCountdown time.Duration // registration countdown once quorum is reached
	TotalRounds  int           // rounds per cycle unless the operator overrides
	RoundTime    time.Duration // chat window per round
	LockGrace    time.Duration // hard ceiling past the deadline before force-lock
	Intermission time.Duration // results window between rounds
	ReplyFiller  string        // appended when persona generation fails
}

func (c Config) withDefaults() Config {
	if c.MinQuorum <= 0 {
		c.MinQuorum = 4
	}
	if c.RegCountdown <= 0 {
		c.RegCountdown = 60 * time.Second
	}
	if c.TotalRounds <= 0 {
		c.TotalRounds = 3
	}
	if c.RoundTime <= 0 {
		c.RoundTime = 90 * time.Second
	}
	if c.LockGrace <= 0 {
		c.LockGrace = 10 * time.Second
	}
	if c.Intermission <= 0 {
		c.Intermission = 5 * time.Second
	}
	if c.ReplyFiller == "" {
		c.ReplyFiller = "hmm, give me a second..."
	}
	return c
}

// Engine owns the authoritative in-flight game state: the open cycle, its
// participants, and every Match with its transcript and vote. All mutation
// goes through Engine methods under one mutex; no other component touches
// these structures directly. Finished cycles are
// reduced to CycleReports and drained by the persistence layer.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	cycle    *Cycle
	matches  map[string]*Match
	personas map[string]*Persona

	finished []*CycleReport
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		matches:  make(map[string]*Match),
		personas: make(map[string]*Persona),
	}
}

// NewPersona builds a persona profile from operator input: the display name
// is title-cased and its slug becomes the stable identifier.
func NewPersona(displayName, model, style string, external bool, controllerID int64) Persona {
	name := cases.Title(language.English).String(displayName)
	return Persona{
		Slug:         slug.Make(name),
		DisplayName:  name,
		Model:        model,
		Style:        style,
		External:     external,
		ControllerID: controllerID,
	}
}

// RegisterPersona adds or replaces a persona in the opponent pool. Personas
// registered while a cycle is live only join the pool for later rounds.
func (e *Engine) RegisterPersona(p Persona) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := p
	e.personas[p.Slug] = &cp
}

// PersonaBySlug returns a copy of a registered persona.
func (e *Engine) PersonaBySlug(slug string) (Persona, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.personas[slug]
	if !ok {
		return Persona{}, false
	}
	return *p, true
}

// DrainFinished hands over every finalized cycle report exactly once.
func (e *Engine) DrainFinished() []*CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.finished
	e.finished = nil
	return out
}

func (e *Engine) matchLocked(id string) (*Match, error) {
	m, ok := e.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}
