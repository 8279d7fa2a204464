package worker

import (
	"context"
	"fmt"
	"testing"

	"piano/internal/amqp"
	"piano/internal/core"
	"piano/internal/engine"
	"piano/internal/storage"
)

type fakeGoalReader struct {
	goal core.SavingsGoal
}

func (f *fakeGoalReader) GetGoal(_ context.Context, id string) (core.SavingsGoal, error) {
	if id != f.goal.ID {
		return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
	}
	return f.goal, nil
}

type fakeSnapshotWriter struct {
	saved []storage.ProjectionSnapshot
}

func (f *fakeSnapshotWriter) SaveProjectionSnapshot(_ context.Context, snap storage.ProjectionSnapshot) (storage.ProjectionSnapshot, error) {
	snap.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, snap)
	return snap, nil
}

func TestHandleProjectionJob(t *testing.T) {
	goals := &fakeGoalReader{goal: core.SavingsGoal{
		ID:                 "g1",
		AnnualInterestRate: 12,
		Compounding:        core.CompoundMonthly,
	}}
	snapshots := &fakeSnapshotWriter{}
	w := NewProjectionWorker(goals, snapshots, engine.New(nil), nil)

	job := amqp.NewProjectionJobMessage("g1", 100000, core.NewDate(2025, 1, 1), core.NewDate(2026, 1, 1))
	if err := w.HandleProjectionJob(context.Background(), job); err != nil {
		t.Fatalf("HandleProjectionJob() error = %v", err)
	}

	if len(snapshots.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(snapshots.saved))
	}
	snap := snapshots.saved[0]
	if snap.GoalID != "g1" || snap.PrincipalCents != 100000 {
		t.Errorf("snapshot = %+v, want goal g1 principal 100000", snap)
	}
	// 12% compounded monthly over one year.
	if snap.FinalBalanceCents != 112683 {
		t.Errorf("final balance = %d, want 112683", snap.FinalBalanceCents)
	}
}

func TestHandleProjectionJob_DeletedGoalDropped(t *testing.T) {
	goals := &fakeGoalReader{goal: core.SavingsGoal{ID: "other"}}
	snapshots := &fakeSnapshotWriter{}
	w := NewProjectionWorker(goals, snapshots, engine.New(nil), nil)

	job := amqp.NewProjectionJobMessage("gone", 100000, core.NewDate(2025, 1, 1), core.NewDate(2026, 1, 1))
	if err := w.HandleProjectionJob(context.Background(), job); err != nil {
		t.Errorf("HandleProjectionJob() error = %v, want nil for deleted goal", err)
	}
	if len(snapshots.saved) != 0 {
		t.Errorf("saved %d snapshots, want 0", len(snapshots.saved))
	}
}

func TestHandleProjectionJob_MalformedWindow(t *testing.T) {
	w := NewProjectionWorker(&fakeGoalReader{}, &fakeSnapshotWriter{}, engine.New(nil), nil)

	job := &amqp.ProjectionJobMessage{GoalID: "g1", FromDate: "garbage", ToDate: "2026-01-01"}
	if err := w.HandleProjectionJob(context.Background(), job); err == nil {
		t.Error("HandleProjectionJob() should fail on a malformed window")
	}
}
