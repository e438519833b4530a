package models

import "time"

// CycleRecord is the durable summary of one finished (or abandoned) cycle.
// Full transcripts are archived to object storage; ArchiveURL points there.
type CycleRecord struct {
	ID         string     `json:"id" gorm:"primaryKey;type:uuid"`
	Slug       string     `json:"slug" gorm:"uniqueIndex;not null"`
	Name       string     `json:"name" gorm:"not null"`
	Rounds     int        `json:"rounds"`
	Players    int        `json:"players"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty" gorm:"index"`
	ArchiveURL string     `json:"archive_url,omitempty"`
	Archived   bool       `json:"archived" gorm:"default:false"`

	Timestamps
}

// CycleLeaderboardRow — one ranked entry of a finished cycle's leaderboard
type CycleLeaderboardRow struct {
	ID            string  `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	CycleID       string  `json:"cycle_id" gorm:"index;not null"`
	UserID        int64   `json:"user_id" gorm:"index;not null"`
	DisplayName   string  `json:"display_name"`
	Rank          int     `json:"rank"`
	Correct       int     `json:"correct"`
	Total         int     `json:"total"`
	VotesCast     int     `json:"votes_cast"`
	Accuracy      float64 `json:"accuracy"`
	AvgDecisionMS int64   `json:"avg_decision_ms"`
	VerifiedHuman bool    `json:"verified_human"`

	Timestamps
}

// CyclePersonaStat records how well one persona deceived during one cycle.
type CyclePersonaStat struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	CycleID      string `json:"cycle_id" gorm:"index;not null"`
	PersonaSlug  string `json:"persona_slug" gorm:"index;not null"`
	Fooled       int    `json:"fooled"`
	Interactions int    `json:"interactions"`
	Rating       int    `json:"deception_rating"`

	Timestamps
}
