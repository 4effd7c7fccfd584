package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/logger"
	"github.com/Strob0t/CloudLaunch/internal/port/database"
	"github.com/Strob0t/CloudLaunch/internal/port/launcher"
	"github.com/Strob0t/CloudLaunch/internal/port/messagequeue"
)

// RunService manages the lifecycle of launched runs.
type RunService struct {
	store    database.RunStore
	launcher launcher.Launcher
	queue    messagequeue.Publisher
	now      func() time.Time
}

// NewRunService creates a RunService. A nil queue disables run events.
func NewRunService(store database.RunStore, l launcher.Launcher, queue messagequeue.Publisher) *RunService {
	return &RunService{store: store, launcher: l, queue: queue, now: time.Now}
}

// Get returns a run by ID.
func (s *RunService) Get(ctx context.Context, id int64) (*run.Run, error) {
	return s.store.GetRun(ctx, id)
}

// Start launches r through the execution layer, persists it and announces
// it. r.ID is reserved when zero. If persisting fails the workload is
// stopped again so no untracked run survives.
func (s *RunService) Start(ctx context.Context, r *run.Run) error {
	return s.start(ctx, r, s.store.CreateRun)
}

func (s *RunService) start(ctx context.Context, r *run.Run, persist func(context.Context, *run.Run) error) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == 0 {
		id, err := s.store.NextRunID(ctx)
		if err != nil {
			return fmt.Errorf("reserve run id: %w", err)
		}
		r.ID = id
	}
	ctx = logger.WithRunID(ctx, r.ID)
	r.Status = run.StatusPending
	r.StartDate = s.now().UTC()
	r.EndDate = nil

	podID, err := s.launcher.Launch(ctx, r)
	if err != nil {
		return fmt.Errorf("launch run %d: %w", r.ID, err)
	}
	r.PodID = podID

	if err := persist(ctx, r); err != nil {
		if stopErr := s.launcher.Stop(ctx, podID); stopErr != nil {
			slog.ErrorContext(ctx, "stop orphaned pod failed", "pod_id", podID, "error", stopErr)
		}
		return fmt.Errorf("persist run %d: %w", r.ID, err)
	}

	s.publishCreated(ctx, r)
	slog.InfoContext(ctx, "run started", "region_id", r.Instance.CloudRegionID, "pod_id", podID)
	return nil
}

// RestartRun starts newRun as a replacement of parentID. The new run and
// its restart link are stored together, so a failed write leaves neither
// a live pod nor a run without a link.
func (s *RunService) RestartRun(ctx context.Context, newRun *run.Run, parentID int64) (*run.Run, error) {
	if _, err := s.store.GetRun(ctx, parentID); err != nil {
		return nil, err
	}
	initial := parentID
	link, err := s.store.FindRestartByRestartedRunID(ctx, parentID)
	switch {
	case err == nil:
		initial = link.InitialRunID
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	newRun.ID = 0
	newRun.RestartedRuns = nil
	err = s.start(ctx, newRun, func(ctx context.Context, r *run.Run) error {
		return s.store.CreateRestartedRun(ctx, r, run.RestartLink{
			ParentRunID:    parentID,
			RestartedRunID: r.ID,
			InitialRunID:   initial,
			Date:           s.now().UTC(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("restart run %d: %w", parentID, err)
	}
	slog.InfoContext(ctx, "run restarted", "parent_run_id", parentID, "restarted_run_id", newRun.ID)
	return newRun, nil
}

// FindRestartByRestartedRunID returns the link that produced runID.
func (s *RunService) FindRestartByRestartedRunID(ctx context.Context, runID int64) (*run.RestartLink, error) {
	return s.store.FindRestartByRestartedRunID(ctx, runID)
}

// Stop terminates an active run. Stopping a finished run is a no-op.
func (s *RunService) Stop(ctx context.Context, id int64) error {
	r, err := s.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if r.Status.IsFinal() {
		return nil
	}
	if r.PodID != "" {
		if err := s.launcher.Stop(ctx, r.PodID); err != nil {
			return fmt.Errorf("stop run %d: %w", id, err)
		}
	}
	end := s.now().UTC()
	return s.store.UpdateRunStatus(ctx, id, run.StatusStopped, &end)
}

// Pause asks a running run to pause.
func (s *RunService) Pause(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, run.StatusPausing)
}

// Resume asks a paused run to resume.
func (s *RunService) Resume(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, run.StatusResuming)
}

// UpdateStatus moves a run to status if the state machine allows it.
func (s *RunService) UpdateStatus(ctx context.Context, id int64, status run.Status) error {
	r, err := s.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if r.Status == status {
		return nil
	}
	if !run.CanTransition(r.Status, status) {
		return fmt.Errorf("run %d cannot move from %s to %s: %w", id, r.Status, status, domain.ErrConflict)
	}
	var end *time.Time
	if status.IsFinal() {
		t := s.now().UTC()
		end = &t
	}
	return s.store.UpdateRunStatus(ctx, id, status, end)
}

// HandleStatus consumes runs.status messages from the execution layer.
func (s *RunService) HandleStatus(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.RunStatusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode run status: %w", err)
	}
	err := s.UpdateStatus(logger.WithRunID(ctx, p.RunID), p.RunID, run.Status(p.Status))
	if errors.Is(err, domain.ErrConflict) {
		slog.WarnContext(ctx, "ignoring status update", "run_id", p.RunID, "status", p.Status, "error", err)
		return nil
	}
	return err
}

func (s *RunService) publishCreated(ctx context.Context, r *run.Run) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.RunCreatedPayload{
		RunID:          r.ID,
		ParentRunID:    r.ParentRunID,
		RegionID:       r.Instance.CloudRegionID,
		Provider:       string(r.Instance.CloudProvider),
		InstanceType:   r.Instance.NodeType,
		PriceType:      string(run.PriceTypeOf(&r.Instance.Spot)),
		DockerImage:    r.DockerImage,
		Owner:          r.Owner,
		PodID:          r.PodID,
		EstimatedPrice: r.EstimatedPrice,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal run created payload", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectRunCreated, data); err != nil {
		slog.WarnContext(ctx, "publish run created failed", "error", err)
	}
}
