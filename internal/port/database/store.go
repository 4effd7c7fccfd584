// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/domain/instance"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/domain/tool"
)

// Store is the port interface for database operations.
type Store interface {
	RegionStore
	RunStore
	ToolStore
	OfferStore
}

// RegionStore persists regions, their credentials and file-share mounts.
// Lookups of missing records return errors wrapping domain.ErrNotFound.
type RegionStore interface {
	// ListRegions returns all regions in ascending id order.
	ListRegions(ctx context.Context) ([]region.Region, error)
	GetRegion(ctx context.Context, id int64) (*region.Region, error)
	GetRegionByName(ctx context.Context, name string) (*region.Region, error)
	GetRegionByProviderAndCode(ctx context.Context, provider region.Provider, code string) (*region.Region, error)
	GetDefaultRegion(ctx context.Context) (*region.Region, error)

	// SaveRegion inserts r when r.ID is zero and updates it otherwise. When
	// r.Default is set, every other default region is demoted in the same
	// transaction. Non-nil creds replace the stored credentials. The saved
	// region is returned with its id.
	SaveRegion(ctx context.Context, r *region.Region, creds *region.Credentials) (*region.Region, error)
	// DeleteRegion removes a region together with its credentials.
	DeleteRegion(ctx context.Context, id int64) error

	GetCredentials(ctx context.Context, regionID int64) (*region.Credentials, error)

	ListFileShareMounts(ctx context.Context, regionID int64) ([]region.FileShareMount, error)
}

// RunStore persists runs and their restart chains.
type RunStore interface {
	// NextRunID reserves a run id.
	NextRunID(ctx context.Context) (int64, error)
	// CreateRun stores r under r.ID.
	CreateRun(ctx context.Context, r *run.Run) error
	// GetRun returns a run with the restart links it is the parent of.
	GetRun(ctx context.Context, id int64) (*run.Run, error)
	UpdateRunStatus(ctx context.Context, id int64, status run.Status, endDate *time.Time) error

	// CreateRestartedRun stores r and the link that produced it in one
	// transaction. Neither is stored when either fails.
	CreateRestartedRun(ctx context.Context, r *run.Run, link run.RestartLink) error
	// FindRestartByRestartedRunID returns the link that produced runID.
	FindRestartByRestartedRunID(ctx context.Context, runID int64) (*run.RestartLink, error)
	// ListRestartLinks returns every link of the chain rooted at initialRunID.
	ListRestartLinks(ctx context.Context, initialRunID int64) ([]run.RestartLink, error)
}

// ToolStore reads the launch defaults owned by tools and pipelines.
type ToolStore interface {
	// GetToolByImage looks a tool up by image name without tag.
	GetToolByImage(ctx context.Context, image string) (*tool.Tool, error)
	GetPipeline(ctx context.Context, id int64) (*tool.Pipeline, error)
}

// OfferStore reads instance pricing.
type OfferStore interface {
	ListOffers(ctx context.Context, regionID int64) ([]instance.Offer, error)
	GetDiskPrice(ctx context.Context, regionID int64) (*instance.DiskPrice, error)
}
