// services/scheduler.go
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"detective-arena/engine"

	"github.com/go-co-op/gocron/v2"
)

// cycleLedger is the slice of LeaderboardService the scheduler needs.
type cycleLedger interface {
	PersistReport(report *engine.CycleReport) error
	ArchiveCycle(ctx context.Context, report *engine.CycleReport) error
}

// ArenaScheduler drives the clock: a fast job ticks the engine, a slower job
// persists finished cycles, and a sweep retries reports whose persistence or
// archive upload failed. The engine forgets a cycle once drained, so a report
// is never dropped before it reaches the database.
type ArenaScheduler struct {
	Engine *engine.Engine
	Ledger cycleLedger

	mu         sync.Mutex
	unsaved    []*engine.CycleReport // drained but not yet persisted
	unarchived []*engine.CycleReport // persisted but not yet archived
}

func NewArenaScheduler(eng *engine.Engine, ledger cycleLedger) *ArenaScheduler {
	return &ArenaScheduler{Engine: eng, Ledger: ledger}
}

func (s *ArenaScheduler) Start() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every second: deadlines, force-locks, round advancement
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Second),
		gocron.NewTask(func() {
			s.Engine.Tick(time.Now())
		}),
	)

	// Every 5 seconds: drain finalized cycles into the database
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Second),
		gocron.NewTask(func() {
			for _, report := range s.Engine.DrainFinished() {
				s.flush(report)
			}
		}),
	)

	// Every minute: retry reports stuck on a persistence or upload failure
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.retry()
		}),
	)
}

// flush persists a report and uploads its archive, queueing it for retry at
// whichever step fails.
func (s *ArenaScheduler) flush(report *engine.CycleReport) {
	if err := s.Ledger.PersistReport(report); err != nil {
		log.Printf("❌ [Scheduler] Failed to persist cycle %s, queued for retry: %v", report.Slug, err)
		s.mu.Lock()
		s.unsaved = append(s.unsaved, report)
		s.mu.Unlock()
		return
	}
	s.archiveOrQueue(report)
}

func (s *ArenaScheduler) archiveOrQueue(report *engine.CycleReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Ledger.ArchiveCycle(ctx, report); err != nil {
		s.mu.Lock()
		s.unarchived = append(s.unarchived, report)
		s.mu.Unlock()
	}
}

func (s *ArenaScheduler) retry() {
	s.mu.Lock()
	unsaved := s.unsaved
	unarchived := s.unarchived
	s.unsaved = nil
	s.unarchived = nil
	s.mu.Unlock()

	for _, report := range unsaved {
		s.flush(report)
	}
	for _, report := range unarchived {
		s.archiveOrQueue(report)
	}
}
