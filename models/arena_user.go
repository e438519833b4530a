package models

import "time"

// ArenaUser is a local snapshot of user data needed for arena play, plus the
// career aggregates rolled up after every finished cycle. Owned solely by this
// service; identity fields are populated via sync worker from the profile
// service's user table.
type ArenaUser struct {
	ID             int64   `json:"id" gorm:"primaryKey"` // gateway user id
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Handle         string  `gorm:"index;not null" json:"handle"`
	DisplayName    string  `json:"display_name"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	// Career aggregates, updated on cycle finalization
	CyclesPlayed      int64   `json:"cycles_played" gorm:"default:0"`
	MatchesJudged     int64   `json:"matches_judged" gorm:"default:0"`
	CorrectJudgements int64   `json:"correct_judgements" gorm:"default:0"`
	VotesCast         int64   `json:"votes_cast" gorm:"default:0"`
	AvgDecisionMS     int64   `json:"avg_decision_ms" gorm:"default:0"`
	BestAccuracy      float64 `json:"best_accuracy" gorm:"default:0"`

	// Humanity verification: set when any single cycle clears the threshold
	VerifiedHuman  bool       `json:"verified_human" gorm:"default:false"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`

	IsBanned bool `json:"is_banned" gorm:"default:false"` // local arena ban

	Timestamps
}

// RemoteUser mirrors the schema of the foreign `users` table (read-only).
// Used by sync worker to fetch data from the profile service's DB.
type RemoteUser struct {
	ID                int64      `gorm:"column:id"`
	Username          string     `gorm:"column:username"`
	DisplayName       *string    `gorm:"column:display_name"`
	ProfilePictureURL *string    `gorm:"column:profile_picture_url"`
	ExternalID        string     `gorm:"column:external_id"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
	DeletedAt         *time.Time `gorm:"column:deleted_at"` // soft-delete marker
}
