package engine

import (
	"time"
)

// CycleState is the lifecycle phase of a game cycle.
type CycleState string

const (
	StateRegistration CycleState = "registration"
	StateLive         CycleState = "live"
	StateFinished     CycleState = "finished"
)

// Vote is a participant's judgement of their opponent.
type Vote string

const (
	VoteNone Vote = ""
	VoteReal Vote = "real"
	VoteBot  Vote = "bot"
)

// ParseVote validates a client-supplied vote value.
func ParseVote(s string) (Vote, bool) {
	switch Vote(s) {
	case VoteReal, VoteBot:
		return Vote(s), true
	default:
		return VoteNone, false
	}
}

type OpponentKind string

const (
	OpponentHuman OpponentKind = "human"
	OpponentBot   OpponentKind = "bot"
)

// Persona is an AI-driven opponent profile. External personas are driven by an
// outside controller instead of generated text; ControllerID binds the persona
// to that controller's identity (0 = any authenticated controller).
type Persona struct {
	Slug         string `json:"slug"`
	DisplayName  string `json:"display_name"`
	Model        string `json:"model"`
	Style        string `json:"style"`
	External     bool   `json:"external"`
	ControllerID int64  `json:"controller_id,omitempty"`
}

// Opponent is a tagged variant: exactly one of the human fields or Persona is
// meaningful depending on Kind.
type Opponent struct {
	Kind      OpponentKind
	HumanID   int64
	HumanName string
	Persona   *Persona
}

func (o Opponent) DisplayName() string {
	if o.Kind == OpponentHuman {
		return o.HumanName
	}
	if o.Persona != nil {
		return o.Persona.DisplayName
	}
	return ""
}

func (o Opponent) IsExternal() bool {
	return o.Kind == OpponentBot && o.Persona != nil && o.Persona.External
}

// Truth is the vote value that correctly identifies this opponent.
func (o Opponent) Truth() Vote {
	if o.Kind == OpponentHuman {
		return VoteReal
	}
	return VoteBot
}

// Message is one chat line inside a match. Seq and SentAt are server-assigned;
// client-supplied time is never trusted for ordering. SenderID is 0 when the
// persona side produced the message.
type Message struct {
	ID       string    `json:"id"`
	SenderID int64     `json:"sender_id"`
	Text     string    `json:"text"`
	Seq      int       `json:"seq"`
	SentAt   time.Time `json:"sent_at"`
}

// Match is one chat slot from the owning participant's perspective. Human
// opponents get a mirrored Match of their own (MirrorID links the pair);
// messages appended to either side appear in both.
type Match struct {
	ID       string
	CycleID  string
	Round    int
	Slot     int
	OwnerID  int64
	Opponent Opponent
	MirrorID string

	Messages []Message
	seq      int

	Vote        Vote
	FirstVoteAt *time.Time
	Locked      bool
	Correct     *bool

	CreatedAt time.Time
	Deadline  time.Time

	// persona worker bookkeeping, never exposed
	botPending bool
}

// RoundResult records how one locked match scored for its owner.
type RoundResult struct {
	Round        int          `json:"round"`
	Slot         int          `json:"slot"`
	OpponentName string       `json:"opponent_name"`
	OpponentKind OpponentKind `json:"opponent_kind"`
	PersonaSlug  string       `json:"persona_slug,omitempty"`
	Vote         Vote         `json:"vote"`
	Voted        bool         `json:"voted"`
	Correct      bool         `json:"correct"`
	DecisionMS   int64        `json:"decision_ms"`
}

// Participant is one registered player of the current cycle.
type Participant struct {
	ID           int64
	Handle       string
	DisplayName  string
	AvatarURL    string
	RegisteredAt time.Time
	Ready        bool

	Score   int
	Results []RoundResult

	facedHumans   map[int64]bool
	facedPersonas map[string]bool
}

// Cycle is one complete run of the game from registration to scoring.
type Cycle struct {
	ID          string
	Slug        string
	Name        string
	State       CycleState
	CreatedAt   time.Time
	RegClosesAt time.Time // zero until quorum is first reached
	StartedAt   *time.Time
	FinishedAt  *time.Time

	Round         int // 0 while registering, 1..TotalRounds while live
	TotalRounds   int
	RoundSeconds  int
	RoundDeadline time.Time

	Participants map[int64]*Participant
	order        []int64 // registration order, for deterministic tie-breaks

	// set at finalization; served to polls until the next cycle opens
	Leaderboard []LeaderboardRow

	clearedAt *time.Time // when the current round's barrier cleared
}

// LeaderboardRow is one ranked entry of a finished cycle.
type LeaderboardRow struct {
	Rank          int     `json:"rank"`
	ParticipantID int64   `json:"participant_id"`
	DisplayName   string  `json:"display_name"`
	Correct       int     `json:"correct"`
	Total         int     `json:"total"`
	VotesCast     int     `json:"votes_cast"`
	Accuracy      float64 `json:"accuracy"`
	AvgDecisionMS int64   `json:"avg_decision_ms"`
	VerifiedHuman bool    `json:"verified_human"`
}

// PersonaStats accumulates a persona's deception performance over a cycle.
type PersonaStats struct {
	Slug         string `json:"slug"`
	DisplayName  string `json:"display_name"`
	Fooled       int    `json:"fooled"`
	Interactions int    `json:"interactions"`
	Rating       int    `json:"deception_rating"`
}

// ArchivedMatch is the persisted form of a locked match.
type ArchivedMatch struct {
	ID           string       `json:"id"`
	Round        int          `json:"round"`
	Slot         int          `json:"slot"`
	OwnerID      int64        `json:"owner_id"`
	OpponentName string       `json:"opponent_name"`
	OpponentKind OpponentKind `json:"opponent_kind"`
	PersonaSlug  string       `json:"persona_slug,omitempty"`
	Vote         Vote         `json:"vote"`
	Voted        bool         `json:"voted"`
	Correct      bool         `json:"correct"`
	Messages     []Message    `json:"messages"`
}

// CycleReport is everything the persistence collaborator needs once a cycle
// finishes: the engine hands it off and forgets the cycle.
type CycleReport struct {
	CycleID     string                  `json:"cycle_id"`
	Slug        string                  `json:"slug"`
	Name        string                  `json:"name"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Rounds      int                     `json:"rounds"`
	Leaderboard []LeaderboardRow        `json:"leaderboard"`
	Personas    map[string]PersonaStats `json:"personas"`
	Matches     []ArchivedMatch         `json:"matches"`
}

// --- polling views ---

type MessageView struct {
	ID     string    `json:"id"`
	Mine   bool      `json:"mine"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// MatchView deliberately omits the opponent's kind: revealing it is the game.
type MatchView struct {
	ID           string        `json:"id"`
	Round        int           `json:"round"`
	Slot         int           `json:"slot"`
	OpponentName string        `json:"opponent_name"`
	Deadline     time.Time     `json:"deadline"`
	Vote         Vote          `json:"vote"`
	Locked       bool          `json:"locked"`
	Messages     []MessageView `json:"messages"`
}

// PollView is the full answer to one client poll: cycle phase, active
// matches, and a server timestamp for client clock-drift correction.
type PollView struct {
	ServerTime    time.Time        `json:"server_time"`
	Phase         CycleState       `json:"phase"`
	CycleID       string           `json:"cycle_id,omitempty"`
	CycleName     string           `json:"cycle_name,omitempty"`
	Round         int              `json:"round"`
	TotalRounds   int              `json:"total_rounds"`
	Players       int              `json:"players"`
	Quorum        int              `json:"quorum"`
	RegClosesAt   *time.Time       `json:"registration_closes_at,omitempty"`
	Registered    bool             `json:"registered"`
	Active        []MatchView      `json:"active"`
	BetweenRounds bool             `json:"between_rounds"`
	LastRound     []RoundResult    `json:"last_round,omitempty"`
	Leaderboard   []LeaderboardRow `json:"leaderboard,omitempty"`
}

// BotTurn is one internally-driven persona slot owed a reply.
type BotTurn struct {
	MatchID    string
	Persona    Persona
	Transcript []Message
}
