package services

import (
	"context"
	"errors"
	"testing"

	"detective-arena/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLedger struct {
	persistErr error
	archiveErr error
	persisted  []string
	archived   []string
}

func (l *stubLedger) PersistReport(report *engine.CycleReport) error {
	if l.persistErr != nil {
		return l.persistErr
	}
	l.persisted = append(l.persisted, report.Slug)
	return nil
}

func (l *stubLedger) ArchiveCycle(_ context.Context, report *engine.CycleReport) error {
	if l.archiveErr != nil {
		return l.archiveErr
	}
	l.archived = append(l.archived, report.Slug)
	return nil
}

func TestScheduler_PersistFailureRequeuesReport(t *testing.T) {
	ledger := &stubLedger{persistErr: errors.New("db down")}
	s := NewArenaScheduler(nil, ledger)
	report := &engine.CycleReport{Slug: "cycle-a"}

	s.flush(report)
	assert.Empty(t, ledger.persisted, "a failed persist must not look saved")
	require.Len(t, s.unsaved, 1)

	// Storage comes back; the retry sweep lands the report and its archive.
	ledger.persistErr = nil
	s.retry()
	assert.Equal(t, []string{"cycle-a"}, ledger.persisted)
	assert.Equal(t, []string{"cycle-a"}, ledger.archived)
	assert.Empty(t, s.unsaved)
	assert.Empty(t, s.unarchived)
}

func TestScheduler_ArchiveFailureRequeuesUploadOnly(t *testing.T) {
	ledger := &stubLedger{archiveErr: errors.New("bucket unreachable")}
	s := NewArenaScheduler(nil, ledger)
	report := &engine.CycleReport{Slug: "cycle-b"}

	s.flush(report)
	assert.Equal(t, []string{"cycle-b"}, ledger.persisted)
	require.Len(t, s.unarchived, 1)

	ledger.archiveErr = nil
	s.retry()
	assert.Equal(t, []string{"cycle-b"}, ledger.archived)
	// The rows were already written; the retry must not persist twice.
	assert.Equal(t, []string{"cycle-b"}, ledger.persisted)
	assert.Empty(t, s.unarchived)
}
