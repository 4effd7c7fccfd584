package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	cfotel "github.com/Strob0t/CloudLaunch/internal/adapter/otel"
	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/logger"
	"github.com/Strob0t/CloudLaunch/internal/port/database"
	"github.com/Strob0t/CloudLaunch/internal/port/messagequeue"
)

// ShiftConfig holds the settings of a ShiftService.
type ShiftConfig struct {
	Enabled               bool
	MaxPerSecond          float64
	Burst                 int
	CloudDependentSchemes []string
}

// ShiftService restarts stuck runs in another region of the same provider.
type ShiftService struct {
	regions *RegionService
	runs    *RunService
	store   database.RunStore
	cfg     ShiftConfig
	limiter *rate.Limiter
	group   singleflight.Group
	metrics *cfotel.Metrics
}

// NewShiftService creates a new ShiftService.
func NewShiftService(regions *RegionService, runs *RunService, store database.RunStore, cfg ShiftConfig) *ShiftService {
	if len(cfg.CloudDependentSchemes) == 0 {
		cfg.CloudDependentSchemes = run.DefaultCloudDependentSchemes
	}
	limit := rate.Inf
	if cfg.MaxPerSecond > 0 {
		limit = rate.Limit(cfg.MaxPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &ShiftService{
		regions: regions,
		runs:    runs,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// SetMetrics sets the optional metric instruments.
func (s *ShiftService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// RestartRunInAnotherRegion restarts run runID in the first shift-enabled
// region of the same provider that no run of its restart chain has used,
// then stops the original run. A nil run with a nil error means the run is
// not eligible or no region is left. Concurrent calls for the same run
// share one attempt.
func (s *ShiftService) RestartRunInAnotherRegion(ctx context.Context, runID int64) (*run.Run, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(runID, 10), func() (any, error) {
		return s.shift(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	r, _ := v.(*run.Run)
	return r, nil
}

func (s *ShiftService) shift(ctx context.Context, runID int64) (*run.Run, error) {
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := cfotel.StartShiftSpan(ctx, runID)
	defer span.End()

	current, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	currentRegion, reason := s.eligible(ctx, current)
	if reason != "" {
		s.skipped(ctx, runID, reason)
		return nil, nil
	}

	tried, err := s.triedRegions(ctx, current)
	if err != nil {
		return nil, err
	}
	target, err := s.nextRegion(ctx, currentRegion.Provider, tried)
	if err != nil {
		return nil, err
	}
	if target == nil {
		slog.InfoContext(ctx, "no region left to shift run to",
			"provider", currentRegion.Provider, "tried_regions", sortedIDs(tried))
		s.skipped(ctx, runID, "exhausted")
		return nil, nil
	}

	next := current.Clone()
	next.Instance.CloudRegionID = target.ID
	next.Instance.CloudProvider = target.Provider
	next.PodID = ""
	next.EstimatedPrice = 0
	restarted, err := s.runs.RestartRun(ctx, &next, current.ID)
	if err != nil {
		return nil, fmt.Errorf("restart run %d in region %d: %w", current.ID, target.ID, err)
	}
	if err := s.runs.Stop(ctx, current.ID); err != nil {
		slog.ErrorContext(ctx, "stop shifted run failed", "restarted_run_id", restarted.ID, "error", err)
	}

	span.SetAttributes(
		attribute.Int64("shift.from_region_id", currentRegion.ID),
		attribute.Int64("shift.to_region_id", target.ID),
		attribute.Int64("shift.restarted_run_id", restarted.ID),
	)
	if s.metrics != nil {
		s.metrics.ShiftsPerformed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", string(target.Provider)),
		))
	}
	slog.InfoContext(ctx, "run shifted to another region",
		"from_region_id", currentRegion.ID, "to_region_id", target.ID, "restarted_run_id", restarted.ID)
	return restarted, nil
}

// eligible returns the run's current region, or the reason it may not be
// shifted. A run that already finished is left alone once the
// run and region checks pass.
func (s *ShiftService) eligible(ctx context.Context, r *run.Run) (*region.Region, string) {
	switch {
	case r.Instance.CloudProvider == "":
		return nil, "unknown_provider"
	case r.IsCluster():
		return nil, "cluster"
	case r.IsWorker():
		return nil, "worker"
	case r.PipelineRunParameters.CloudDependent(s.cfg.CloudDependentSchemes):
		return nil, "cloud_dependent_parameters"
	}
	current, err := s.regions.Load(ctx, r.Instance.CloudRegionID)
	if err != nil {
		slog.WarnContext(ctx, "current region of run unavailable", "region_id", r.Instance.CloudRegionID, "error", err)
		return nil, "unknown_region"
	}
	if !current.RunShiftPolicy.ShiftEnabled {
		return nil, "region_shift_disabled"
	}
	if !r.Status.IsActive() {
		return nil, "not_active"
	}
	return current, ""
}

// triedRegions collects the region of r and of every run in its restart
// chain, starting from the chain's root.
func (s *ShiftService) triedRegions(ctx context.Context, r *run.Run) (map[int64]struct{}, error) {
	tried := map[int64]struct{}{r.Instance.CloudRegionID: {}}

	root := r.ID
	link, err := s.store.FindRestartByRestartedRunID(ctx, r.ID)
	switch {
	case err == nil:
		root = link.InitialRunID
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	links, err := s.store.ListRestartLinks(ctx, root)
	if err != nil {
		return nil, err
	}
	chain := []int64{root}
	for _, l := range links {
		chain = append(chain, l.ParentRunID, l.RestartedRunID)
	}
	seen := make(map[int64]bool, len(chain))
	for _, id := range chain {
		if seen[id] || id == r.ID {
			continue
		}
		seen[id] = true
		prev, err := s.store.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		tried[prev.Instance.CloudRegionID] = struct{}{}
	}
	return tried, nil
}

// nextRegion returns the first shift-enabled, untried region of provider in
// ascending id order, or nil.
func (s *ShiftService) nextRegion(ctx context.Context, provider region.Provider, tried map[int64]struct{}) (*region.Region, error) {
	all, err := s.regions.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		r := &all[i]
		if r.Provider != provider || !r.RunShiftPolicy.ShiftEnabled {
			continue
		}
		if _, ok := tried[r.ID]; ok {
			continue
		}
		return r, nil
	}
	return nil, nil
}

// HandleStuck consumes runs.stuck messages. Attempts are throttled so a
// burst of stuck runs cannot flood the launcher.
func (s *ShiftService) HandleStuck(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.RunStuckPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode run stuck: %w", err)
	}
	if !s.cfg.Enabled {
		slog.DebugContext(ctx, "region shift disabled, ignoring stuck run", "run_id", p.RunID)
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "run reported stuck", "run_id", p.RunID, "reason", p.Reason)
	_, err := s.RestartRunInAnotherRegion(ctx, p.RunID)
	return err
}

func (s *ShiftService) skipped(ctx context.Context, runID int64, reason string) {
	slog.InfoContext(ctx, "run not shifted", "run_id", runID, "reason", reason)
	if s.metrics != nil {
		s.metrics.ShiftsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func sortedIDs(ids map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
