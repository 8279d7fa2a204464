package worker

import (
	"context"
	"errors"
	"fmt"

	"piano/internal/amqp"
	"piano/internal/core"
	"piano/internal/engine"
	"piano/internal/log"
	"piano/internal/storage"
)

// GoalReader fetches the goal a projection job refers to.
type GoalReader interface {
	GetGoal(ctx context.Context, id string) (core.SavingsGoal, error)
}

// SnapshotWriter persists a finished projection.
type SnapshotWriter interface {
	SaveProjectionSnapshot(ctx context.Context, snap storage.ProjectionSnapshot) (storage.ProjectionSnapshot, error)
}

// ProjectionWorker consumes projection jobs, compounds the goal balance over
// the requested window and stores the result as a snapshot. The goal's rate
// schedule is read at processing time, not publish time.
type ProjectionWorker struct {
	goals     GoalReader
	snapshots SnapshotWriter
	eng       *engine.Engine
	log       *log.Logger
}

func NewProjectionWorker(goals GoalReader, snapshots SnapshotWriter, eng *engine.Engine, logger *log.Logger) *ProjectionWorker {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentWorker})
	}
	return &ProjectionWorker{
		goals:     goals,
		snapshots: snapshots,
		eng:       eng,
		log:       logger.WithComponent(log.ComponentWorker),
	}
}

// HandleProjectionJob processes a single projection job from AMQP. Jobs for
// goals that no longer exist are dropped, not requeued.
func (w *ProjectionWorker) HandleProjectionJob(ctx context.Context, msg *amqp.ProjectionJobMessage) error {
	from, to, err := msg.Window()
	if err != nil {
		return fmt.Errorf("parse job window: %w", err)
	}

	goal, err := w.goals.GetGoal(ctx, msg.GoalID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.log.WarnContext(ctx, "dropping job for deleted goal", log.FieldGoalID, msg.GoalID)
			return nil
		}
		return fmt.Errorf("get goal: %w", err)
	}

	finalBalance := w.eng.ProjectFinalBalance(goal, msg.PrincipalCents, from, to)

	snap, err := w.snapshots.SaveProjectionSnapshot(ctx, storage.ProjectionSnapshot{
		GoalID:            goal.ID,
		FromDate:          from,
		ToDate:            to,
		PrincipalCents:    msg.PrincipalCents,
		FinalBalanceCents: finalBalance,
	})
	if err != nil {
		return fmt.Errorf("save projection snapshot: %w", err)
	}

	w.log.InfoContext(ctx, "projection computed",
		log.FieldGoalID, goal.ID,
		log.FieldWindowStart, msg.FromDate,
		log.FieldWindowEnd, msg.ToDate,
		log.FieldAmountCents, snap.FinalBalanceCents)

	return nil
}
