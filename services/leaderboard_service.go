package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"detective-arena/engine"
	"detective-arena/models"
	"detective-arena/utils"

	"gorm.io/gorm"
)

// LeaderboardService persists finalized cycle reports: the cycle summary, its
// ranked standings, persona deception stats, participant career rollups, and
// the transcript archive in object storage.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// PersistReport writes one finished cycle to the database. The transcript
// archive is uploaded separately by the archive sweep so a slow R2 call never
// delays scoring.
func (s *LeaderboardService) PersistReport(report *engine.CycleReport) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		started := report.StartedAt
		finished := report.FinishedAt
		record := models.CycleRecord{
			ID:         report.CycleID,
			Slug:       report.Slug,
			Name:       report.Name,
			Rounds:     report.Rounds,
			Players:    len(report.Leaderboard),
			StartedAt:  &started,
			FinishedAt: &finished,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("cycle record: %w", err)
		}

		for _, row := range report.Leaderboard {
			entry := models.CycleLeaderboardRow{
				CycleID:       report.CycleID,
				UserID:        row.ParticipantID,
				DisplayName:   row.DisplayName,
				Rank:          row.Rank,
				Correct:       row.Correct,
				Total:         row.Total,
				VotesCast:     row.VotesCast,
				Accuracy:      row.Accuracy,
				AvgDecisionMS: row.AvgDecisionMS,
				VerifiedHuman: row.VerifiedHuman,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("leaderboard row for user %d: %w", row.ParticipantID, err)
			}
			if err := s.rollupCareer(tx, row); err != nil {
				return err
			}
		}

		for _, stat := range report.Personas {
			cps := models.CyclePersonaStat{
				CycleID:      report.CycleID,
				PersonaSlug:  stat.Slug,
				Fooled:       stat.Fooled,
				Interactions: stat.Interactions,
				Rating:       stat.Rating,
			}
			if err := tx.Create(&cps).Error; err != nil {
				return fmt.Errorf("persona stat %s: %w", stat.Slug, err)
			}
			if err := s.rollupPersona(tx, stat); err != nil {
				return err
			}
		}

		log.Printf("🏁 [LEDGER] Cycle %q persisted: %d players, %d personas", report.Name, len(report.Leaderboard), len(report.Personas))
		return nil
	})
}

// rollupCareer folds one cycle result into the participant's lifetime row.
// Users missing from the snapshot table still get a career row so the sync
// worker can fill identity fields later.
func (s *LeaderboardService) rollupCareer(tx *gorm.DB, row engine.LeaderboardRow) error {
	var u models.ArenaUser
	err := tx.First(&u, "id = ?", row.ParticipantID).Error
	if err == gorm.ErrRecordNotFound {
		u = models.ArenaUser{
			ID:             row.ParticipantID,
			ExternalUserID: fmt.Sprintf("pending-%d", row.ParticipantID),
			Handle:         row.DisplayName,
			DisplayName:    row.DisplayName,
		}
	} else if err != nil {
		return fmt.Errorf("career lookup for user %d: %w", row.ParticipantID, err)
	}

	prevVotes := u.VotesCast
	u.CyclesPlayed++
	u.MatchesJudged += int64(row.Total)
	u.CorrectJudgements += int64(row.Correct)
	u.VotesCast += int64(row.VotesCast)
	if u.VotesCast > 0 {
		// weighted running average of decision latency
		u.AvgDecisionMS = (u.AvgDecisionMS*prevVotes + row.AvgDecisionMS*int64(row.VotesCast)) / u.VotesCast
	}
	if row.Accuracy > u.BestAccuracy {
		u.BestAccuracy = row.Accuracy
	}
	if row.VerifiedHuman {
		now := time.Now()
		u.VerifiedHuman = true
		u.LastVerifiedAt = &now
	}

	if err := tx.Save(&u).Error; err != nil {
		return fmt.Errorf("career rollup for user %d: %w", row.ParticipantID, err)
	}
	return nil
}

// rollupPersona folds one cycle's deception numbers into the catalog entry.
func (s *LeaderboardService) rollupPersona(tx *gorm.DB, stat engine.PersonaStats) error {
	var p models.PersonaRecord
	if err := tx.First(&p, "slug = ?", stat.Slug).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// Persona only registered in memory; nothing to roll up.
			return nil
		}
		return fmt.Errorf("persona lookup %s: %w", stat.Slug, err)
	}
	p.Fooled += int64(stat.Fooled)
	p.Interactions += int64(stat.Interactions)
	if p.Interactions > 0 {
		p.DeceptionRating = engine.DeceptionRating(int(p.Fooled), int(p.Interactions))
	}
	if err := tx.Save(&p).Error; err != nil {
		return fmt.Errorf("persona rollup %s: %w", stat.Slug, err)
	}
	return nil
}

// ArchiveCycle uploads the full transcript report to R2 and marks the record.
// Callers retry on error; the DB rows are already persisted at this point.
func (s *LeaderboardService) ArchiveCycle(ctx context.Context, report *engine.CycleReport) error {
	key := fmt.Sprintf("cycles/%s.json", report.Slug)
	url, err := utils.UploadJSONToR2(ctx, key, report)
	if err != nil {
		log.Printf("⚠️ [LEDGER] Archive upload failed for cycle %s: %v", report.Slug, err)
		return err
	}
	res := s.DB.Model(&models.CycleRecord{}).
		Where("id = ?", report.CycleID).
		Updates(map[string]any{"archive_url": url, "archived": true})
	if res.Error != nil {
		log.Printf("⚠️ [LEDGER] Failed to mark cycle %s archived: %v", report.Slug, res.Error)
		return res.Error
	}
	log.Printf("📦 [LEDGER] Cycle %s archived to %s", report.Slug, url)
	return nil
}
