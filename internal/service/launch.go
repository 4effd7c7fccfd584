package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/CloudLaunch/internal/adapter/otel"
	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/capability"
	"github.com/Strob0t/CloudLaunch/internal/domain/instance"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/domain/tool"
	"github.com/Strob0t/CloudLaunch/internal/port/authz"
	"github.com/Strob0t/CloudLaunch/internal/port/database"
)

// LaunchConfig holds the global launch policy.
type LaunchConfig struct {
	AllowedInstanceTypes  []string
	AllowedPriceTypes     []run.PriceType
	DefaultDiskGB         int
	CloudDependentSchemes []string
}

// LaunchService resolves launch requests into runs and starts them.
type LaunchService struct {
	regions   *RegionService
	runs      *RunService
	tools     database.ToolStore
	instances *InstanceService
	caps      *capability.Processor
	authz     authz.Authorizer
	cfg       LaunchConfig
	metrics   *cfotel.Metrics
}

// NewLaunchService creates a new LaunchService.
func NewLaunchService(
	regions *RegionService,
	runs *RunService,
	tools database.ToolStore,
	instances *InstanceService,
	caps *capability.Processor,
	az authz.Authorizer,
	cfg LaunchConfig,
) *LaunchService {
	if caps == nil {
		caps = capability.NewProcessor(nil)
	}
	return &LaunchService{
		regions:   regions,
		runs:      runs,
		tools:     tools,
		instances: instances,
		caps:      caps,
		authz:     az,
		cfg:       cfg,
	}
}

// SetMetrics sets the optional metric instruments.
func (s *LaunchService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// regionSource records where the launch region came from.
type regionSource int

const (
	regionExplicit regionSource = iota
	regionParent
	regionDefault
)

func (s regionSource) String() string {
	switch s {
	case regionExplicit:
		return "explicit"
	case regionParent:
		return "parent"
	default:
		return "default"
	}
}

// launchPlan is the resolved input of a launch before any side effect.
type launchPlan struct {
	config   run.Configuration
	tool     *tool.Tool
	pipeline *tool.Pipeline
	version  string
	parentID *int64
	region   *region.Region
	source   regionSource
	price    run.PriceType
	// capabilities names the capabilities the request switched on.
	capabilities []string
}

// Launch resolves req and starts the resulting run. Nothing is launched
// or persisted unless every check passes.
func (s *LaunchService) Launch(ctx context.Context, req *run.LaunchRequest) (*run.Run, error) {
	ctx, span := cfotel.StartLaunchSpan(ctx, req.DockerImage, req.Owner)
	defer span.End()

	plan, err := s.resolve(ctx, req)
	if err != nil {
		s.rejected(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	r := s.buildRun(req, plan)
	s.estimate(ctx, r, plan)

	if req.UseRunID != nil {
		r.ID = *req.UseRunID
	}
	if err := s.runs.Start(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("run.id", r.ID),
		attribute.Int64("run.region_id", r.Instance.CloudRegionID),
		attribute.String("run.region_source", plan.source.String()),
		attribute.StringSlice("run.capabilities", plan.capabilities),
	)
	if s.metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("provider", string(r.Instance.CloudProvider)),
			attribute.String("price_type", string(plan.price)),
		)
		s.metrics.LaunchesStarted.Add(ctx, 1, attrs)
		s.metrics.EstimatedPrice.Record(ctx, r.EstimatedPrice, attrs)
	}
	slog.InfoContext(ctx, "run launched",
		"run_id", r.ID,
		"region_id", r.Instance.CloudRegionID,
		"region_source", plan.source.String(),
		"instance_type", r.Instance.NodeType,
		"price_type", plan.price,
		"capabilities", plan.capabilities,
	)
	return r, nil
}

// resolve runs every side-effect free launch check in order.
func (s *LaunchService) resolve(ctx context.Context, req *run.LaunchRequest) (*launchPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	plan, err := s.resolveConfiguration(ctx, req)
	if err != nil {
		return nil, err
	}
	plan.capabilities = s.caps.Enabled(plan.config.Parameters)
	plan.config.Parameters = s.caps.Process(plan.config.Parameters)

	if plan.parentID, err = req.ParentRunID(); err != nil {
		return nil, err
	}
	if err := s.resolveRegion(ctx, plan); err != nil {
		return nil, err
	}
	if err := s.applyToolRegion(ctx, plan); err != nil {
		return nil, err
	}
	if !s.authz.IsAllowed(ctx, authz.PermissionRead, regionResource(plan.region)) {
		return nil, fmt.Errorf("cloud region %d (%s): %w", plan.region.ID, plan.region.Name, domain.ErrPermission)
	}
	if err := s.checkInstanceType(ctx, plan); err != nil {
		return nil, err
	}
	if err := s.checkPriceType(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// resolveConfiguration merges the configuration layers: pipeline entry,
// tool defaults, tool version entry and finally the request itself.
func (s *LaunchService) resolveConfiguration(ctx context.Context, req *run.LaunchRequest) (*launchPlan, error) {
	plan := &launchPlan{}
	name := req.ConfigurationName
	namedFound := false

	var pipelineEntry run.Configuration
	if req.PipelineID != nil {
		p, err := s.tools.GetPipeline(ctx, *req.PipelineID)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d: %w", *req.PipelineID, err)
		}
		plan.pipeline = p
		if e, ok := pickEntry(p.Configurations, name); ok {
			pipelineEntry = e.Configuration
			namedFound = namedFound || name != ""
		}
	}

	image := req.DockerImage
	if image == "" {
		image = pipelineEntry.DockerImage
	}
	if image == "" {
		return nil, domain.Invalid("docker_image", "", "is required")
	}

	t, err := s.tools.GetToolByImage(ctx, tool.ImageName(image))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("tool %s: %w", tool.ImageName(image), domain.ErrNotFound)
		}
		return nil, err
	}
	plan.tool = t

	plan.version = req.Version
	if plan.version == "" {
		plan.version = tool.ImageTag(image)
	}
	var versionEntry run.Configuration
	if v, ok := t.Version(plan.version); ok {
		if e, ok := pickEntry(v.Configurations, name); ok {
			versionEntry = e.Configuration
			namedFound = namedFound || name != ""
		}
	}
	if name != "" && !namedFound {
		return nil, fmt.Errorf("configuration %q: %w", name, domain.ErrNotFound)
	}

	cfg := run.Merge(pipelineEntry, t.Defaults)
	cfg = run.Merge(cfg, versionEntry)
	cfg = run.Merge(cfg, req.Configuration())
	cfg.DockerImage = image
	plan.config = cfg
	return plan, nil
}

// pickEntry returns the entry called name, or the default entry when name
// is empty.
func pickEntry(entries []run.ConfigurationEntry, name string) (run.ConfigurationEntry, bool) {
	if name != "" {
		return run.FindEntry(entries, name)
	}
	return run.DefaultEntry(entries)
}

// resolveRegion picks the explicit region, then the parent run's region,
// then the default region.
func (s *LaunchService) resolveRegion(ctx context.Context, plan *launchPlan) error {
	if id := plan.config.CloudRegionID; id != nil {
		r, err := s.regions.Load(ctx, *id)
		if err != nil {
			return fmt.Errorf("cloud region %d: %w", *id, err)
		}
		plan.region, plan.source = r, regionExplicit
		return nil
	}
	if plan.parentID != nil {
		parent, err := s.runs.Get(ctx, *plan.parentID)
		if err != nil {
			return fmt.Errorf("parent run %d: %w", *plan.parentID, err)
		}
		r, err := s.regions.Load(ctx, parent.Instance.CloudRegionID)
		if err != nil {
			return fmt.Errorf("region of parent run %d: %w", parent.ID, err)
		}
		plan.region, plan.source = r, regionParent
		return nil
	}
	r, err := s.regions.LoadDefault(ctx)
	if err != nil {
		return err
	}
	plan.region, plan.source = r, regionDefault
	return nil
}

// applyToolRegion enforces a tool version pinned to a region. A pinned tool
// replaces the default region but conflicts with any other choice.
func (s *LaunchService) applyToolRegion(ctx context.Context, plan *launchPlan) error {
	v, ok := plan.tool.Version(plan.version)
	if !ok || v.CloudRegionID == nil || *v.CloudRegionID == plan.region.ID {
		return nil
	}
	if plan.source != regionDefault {
		return fmt.Errorf("tool cloud region not allowed: tool %s:%s requires region %d, got %d: %w",
			plan.tool.Image, plan.version, *v.CloudRegionID, plan.region.ID, domain.ErrConflict)
	}
	r, err := s.regions.Load(ctx, *v.CloudRegionID)
	if err != nil {
		return fmt.Errorf("tool cloud region %d: %w", *v.CloudRegionID, err)
	}
	slog.DebugContext(ctx, "tool region replaces default region",
		"tool", plan.tool.Image, "default_region_id", plan.region.ID, "region_id", r.ID)
	plan.region = r
	return nil
}

func (s *LaunchService) checkInstanceType(ctx context.Context, plan *launchPlan) error {
	it := plan.config.InstanceType
	if it == "" {
		return nil
	}
	patterns := s.cfg.AllowedInstanceTypes
	if len(plan.tool.AllowedInstanceTypes) > 0 {
		patterns = plan.tool.AllowedInstanceTypes
	}
	if !instance.Allowed(it, patterns) {
		return domain.Invalid("instance_type", it, "is not allowed for tool %s", plan.tool.Image)
	}
	offers, err := s.instances.Offers(ctx, plan.region.ID)
	if err != nil {
		return err
	}
	if len(offers) > 0 && !instance.Offered(offers, it) {
		return domain.Invalid("instance_type", it, "is not offered in cloud region %d", plan.region.ID)
	}
	return nil
}

func (s *LaunchService) checkPriceType(plan *launchPlan) error {
	plan.price = run.PriceTypeOf(plan.config.IsSpot)
	allowed := s.cfg.AllowedPriceTypes
	if len(plan.tool.AllowedPriceTypes) > 0 {
		allowed = plan.tool.AllowedPriceTypes
	}
	if !instance.PriceTypeAllowed(plan.price, allowed) {
		return domain.Invalid("price_type", string(plan.price), "is not allowed for tool %s", plan.tool.Image)
	}
	return nil
}

func (s *LaunchService) buildRun(req *run.LaunchRequest, plan *launchPlan) *run.Run {
	cfg := plan.config
	nodeCount := 1
	if cfg.NodeCount != nil {
		nodeCount = *cfg.NodeCount
	}
	disk := cfg.InstanceDisk
	if disk <= 0 {
		disk = s.cfg.DefaultDiskGB
	}
	toolID := plan.tool.ID
	r := &run.Run{
		Instance: run.Instance{
			CloudProvider: plan.region.Provider,
			CloudRegionID: plan.region.ID,
			NodeType:      cfg.InstanceType,
			Spot:          plan.price == run.PriceTypeSpot,
			NodeDisk:      disk,
			NodeCount:     nodeCount,
		},
		ParentRunID:           plan.parentID,
		ToolID:                &toolID,
		Version:               plan.version,
		DockerImage:           cfg.DockerImage,
		CmdTemplate:           cfg.CmdTemplate,
		PipelineRunParameters: cfg.Parameters,
		Owner:                 req.Owner,
	}
	if plan.pipeline != nil {
		id := plan.pipeline.ID
		r.PipelineID = &id
	}
	return r
}

// estimate fills the advisory price of r. Failures never block a launch.
func (s *LaunchService) estimate(ctx context.Context, r *run.Run, plan *launchPlan) {
	if s.instances == nil || r.Instance.NodeType == "" {
		return
	}
	est, err := s.instances.Estimate(ctx, r.Instance.CloudRegionID, r.Instance.NodeType, plan.price, r.Instance.NodeDisk, r.Instance.NodeCount)
	if err != nil {
		slog.WarnContext(ctx, "price estimate failed",
			"region_id", r.Instance.CloudRegionID, "instance_type", r.Instance.NodeType, "error", err)
		return
	}
	r.EstimatedPrice = est.Total()
}

func (s *LaunchService) rejected(ctx context.Context, err error) {
	reason := "error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		reason = "validation"
	case errors.Is(err, domain.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, domain.ErrConflict):
		reason = "conflict"
	case errors.Is(err, domain.ErrPermission):
		reason = "permission"
	}
	slog.WarnContext(ctx, "launch rejected", "reason", reason, "error", err)
	if s.metrics != nil {
		s.metrics.LaunchesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func regionResource(r *region.Region) authz.Resource {
	return authz.Resource{Kind: "cloud_region", ID: r.ID, Owner: r.Owner}
}
