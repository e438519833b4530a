package models

// PersonaRecord is the persisted catalog entry for an AI opponent profile.
// Lifetime deception stats accumulate across cycles; per-cycle numbers live in
// CyclePersonaStat.
type PersonaRecord struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	DisplayName string `json:"display_name" gorm:"not null"`
	Model       string `json:"model"`
	Style       string `json:"style" gorm:"type:text"`

	// External personas are driven by an outside agent instead of the bridge.
	External     bool  `json:"external" gorm:"default:false"`
	ControllerID int64 `json:"controller_id,omitempty"`

	Fooled          int64 `json:"fooled" gorm:"default:0"`
	Interactions    int64 `json:"interactions" gorm:"default:0"`
	DeceptionRating int   `json:"deception_rating" gorm:"default:0"`

	IsActive bool `json:"is_active" gorm:"default:true"`

	Timestamps
}
