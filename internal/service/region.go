// Package service implements business logic on top of ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/CloudLaunch/internal/adapter/otel"
	"github.com/Strob0t/CloudLaunch/internal/cloud"
	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/port/authz"
	"github.com/Strob0t/CloudLaunch/internal/port/cache"
	"github.com/Strob0t/CloudLaunch/internal/port/database"
	"github.com/Strob0t/CloudLaunch/internal/port/secretstore"
)

// RegionConfig holds the settings of a RegionService.
type RegionConfig struct {
	DefaultProvider region.Provider
	SecretName      string
	CacheTTL        time.Duration
}

// RegionService manages cloud regions and keeps the credentials secret in
// sync with them.
type RegionService struct {
	store   database.RegionStore
	helpers cloud.Helpers
	secrets secretstore.Store
	cache   cache.Cache
	cfg     RegionConfig
	authz   authz.Authorizer
	metrics *cfotel.Metrics
	group   singleflight.Group
	now     func() time.Time
}

// NewRegionService creates a new RegionService. c may be nil to disable
// caching.
func NewRegionService(store database.RegionStore, helpers cloud.Helpers, secrets secretstore.Store, c cache.Cache, cfg RegionConfig) *RegionService {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = region.ProviderAWS
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &RegionService{
		store:   store,
		helpers: helpers,
		secrets: secrets,
		cache:   c,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetMetrics sets the optional metric instruments.
func (s *RegionService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// SetAuthorizer sets the authorizer consulted before regions are created,
// updated or deleted. Without one every mutation is denied.
func (s *RegionService) SetAuthorizer(a authz.Authorizer) {
	s.authz = a
}

func (s *RegionService) requireAdmin(ctx context.Context, action string) error {
	if s.authz == nil || !s.authz.IsAdmin(ctx) {
		return fmt.Errorf("%s cloud region: administrator required: %w", action, domain.ErrPermission)
	}
	return nil
}

// Create validates and stores a new region owned by owner. When the region
// is marked default, the previous default is demoted in the same transaction.
func (s *RegionService) Create(ctx context.Context, dto *region.DTO, owner string) (*region.Region, error) {
	if err := s.requireAdmin(ctx, "create"); err != nil {
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	r, creds := dto.Split()
	helper, err := s.helpers.For(r.Provider)
	if err != nil {
		return nil, err
	}
	if err := helper.Validate(ctx, &r, creds); err != nil {
		return nil, err
	}
	if existing, err := s.store.GetRegionByName(ctx, r.Name); err == nil {
		return nil, fmt.Errorf("cloud region name %q already used by region %d: %w", r.Name, existing.ID, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	r.Owner = owner
	r.CreatedDate = s.now().UTC()

	prevDefault := s.currentDefaultID(ctx, r.Default)
	saved, err := s.store.SaveRegion(ctx, &r, creds)
	if err != nil {
		return nil, fmt.Errorf("create cloud region: %w", err)
	}
	s.invalidate(ctx, saved.ID, prevDefault)

	slog.Info("cloud region created", "region_id", saved.ID, "provider", saved.Provider, "default", saved.Default)
	s.syncCredentials(ctx, helper, saved, creds)
	return saved, nil
}

// Update applies the provider's whitelisted fields of dto to region id. The
// provider of a region cannot change.
func (s *RegionService) Update(ctx context.Context, id int64, dto *region.DTO) (*region.Region, error) {
	if err := s.requireAdmin(ctx, "update"); err != nil {
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	updated, creds := dto.Split()

	original, err := s.store.GetRegion(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.Provider != updated.Provider {
		return nil, fmt.Errorf("cloud region %d provider %s cannot change to %s: %w",
			id, original.Provider, updated.Provider, domain.ErrConflict)
	}
	helper, err := s.helpers.For(original.Provider)
	if err != nil {
		return nil, err
	}

	oldCreds, err := s.store.GetCredentials(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	mergedCreds := helper.MergeCredentials(oldCreds, creds)
	merged := helper.Merge(original, &updated)
	if err := helper.Validate(ctx, &merged, mergedCreds); err != nil {
		return nil, err
	}
	if merged.Name != original.Name {
		if other, err := s.store.GetRegionByName(ctx, merged.Name); err == nil && other.ID != id {
			return nil, fmt.Errorf("cloud region name %q already used by region %d: %w", merged.Name, other.ID, domain.ErrConflict)
		}
	}

	prevDefault := s.currentDefaultID(ctx, merged.Default)
	saved, err := s.store.SaveRegion(ctx, &merged, mergedCreds)
	if err != nil {
		return nil, fmt.Errorf("update cloud region %d: %w", id, err)
	}
	s.invalidate(ctx, id, prevDefault)

	slog.Info("cloud region updated", "region_id", id, "default", saved.Default)
	if creds != nil {
		s.syncCredentials(ctx, helper, saved, mergedCreds)
	}
	return saved, nil
}

// Delete removes a region that has no file-share mounts and drops its key
// from the credentials secret.
func (s *RegionService) Delete(ctx context.Context, id int64) (*region.Region, error) {
	if err := s.requireAdmin(ctx, "delete"); err != nil {
		return nil, err
	}
	r, err := s.store.GetRegion(ctx, id)
	if err != nil {
		return nil, err
	}
	mounts, err := s.store.ListFileShareMounts(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(mounts) > 0 {
		return nil, fmt.Errorf("cloud region %d has %d file share mounts: %w", id, len(mounts), domain.ErrConflict)
	}
	if err := s.store.DeleteRegion(ctx, id); err != nil {
		return nil, fmt.Errorf("delete cloud region %d: %w", id, err)
	}
	s.invalidate(ctx, id, 0)

	slog.Info("cloud region deleted", "region_id", id)
	if s.secrets != nil {
		if err := s.secrets.Update(ctx, s.cfg.SecretName, nil, []string{cloud.SecretKey(id)}); err != nil {
			s.secretSyncFailed(ctx, id, err)
		}
	}
	return r, nil
}

// Load returns the region with the given id.
func (s *RegionService) Load(ctx context.Context, id int64) (*region.Region, error) {
	key := regionCacheKey(id)
	if r, ok := s.cached(ctx, key); ok {
		return r, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		r, err := s.store.GetRegion(ctx, id)
		if err != nil {
			return nil, err
		}
		s.fill(ctx, key, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	r := *v.(*region.Region)
	return &r, nil
}

// LoadByNameOrID resolves identifier as an id first when it is all digits,
// then as a name.
func (s *RegionService) LoadByNameOrID(ctx context.Context, identifier string) (*region.Region, error) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil && id > 0 && isDigits(identifier) {
		r, err := s.Load(ctx, id)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	r, err := s.store.GetRegionByName(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("cloud region %q: %w", identifier, domain.ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

// LoadByProviderAndRegionCode returns the region of provider with the code.
func (s *RegionService) LoadByProviderAndRegionCode(ctx context.Context, provider region.Provider, code string) (*region.Region, error) {
	return s.store.GetRegionByProviderAndCode(ctx, provider, code)
}

// LoadOrDefault returns region id, or the default region when id is nil.
func (s *RegionService) LoadOrDefault(ctx context.Context, id *int64) (*region.Region, error) {
	if id == nil {
		return s.LoadDefault(ctx)
	}
	return s.Load(ctx, *id)
}

// LoadDefault returns the default region. A missing default is an error.
func (s *RegionService) LoadDefault(ctx context.Context) (*region.Region, error) {
	r, err := s.store.GetDefaultRegion(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("default cloud region is not configured: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

// LoadAll returns all regions in ascending id order.
func (s *RegionService) LoadAll(ctx context.Context) ([]region.Region, error) {
	return s.store.ListRegions(ctx)
}

// LoadAllAvailable lists the region codes a provider offers. An empty
// provider means the configured default provider.
func (s *RegionService) LoadAllAvailable(provider region.Provider) ([]string, error) {
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	helper, err := s.helpers.For(provider)
	if err != nil {
		return nil, err
	}
	return helper.AvailableRegions(), nil
}

// LoadCredentials returns the credentials of region id.
func (s *RegionService) LoadCredentials(ctx context.Context, id int64) (*region.Credentials, error) {
	return s.store.GetCredentials(ctx, id)
}

// RefreshCredentialsSecret rebuilds the credentials secret from every
// region. A missing secret is logged and skipped.
func (s *RegionService) RefreshCredentialsSecret(ctx context.Context) error {
	if s.secrets == nil {
		return nil
	}
	ctx, span := cfotel.StartSecretRefreshSpan(ctx, s.cfg.SecretName)
	defer span.End()

	exists, err := s.secrets.Exists(ctx, s.cfg.SecretName)
	if err != nil {
		return fmt.Errorf("check secret %s: %w", s.cfg.SecretName, err)
	}
	if !exists {
		slog.Warn("credentials secret does not exist, skipping refresh", "secret", s.cfg.SecretName)
		return nil
	}

	regions, err := s.store.ListRegions(ctx)
	if err != nil {
		return err
	}
	data := make(map[string]string, len(regions))
	for i := range regions {
		r := &regions[i]
		helper, err := s.helpers.For(r.Provider)
		if err != nil {
			slog.Warn("skip region with unknown provider", "region_id", r.ID, "provider", r.Provider)
			continue
		}
		creds, err := s.store.GetCredentials(ctx, r.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if value, ok := helper.SerializeCredentials(r, creds); ok {
			data[cloud.SecretKey(r.ID)] = value
		}
	}
	if err := s.secrets.Refresh(ctx, s.cfg.SecretName, data); err != nil {
		return fmt.Errorf("refresh secret %s: %w", s.cfg.SecretName, err)
	}
	slog.Info("credentials secret refreshed", "secret", s.cfg.SecretName, "entries", len(data))
	return nil
}

// syncCredentials upserts the region's key in the credentials secret.
// Failures are logged; the next full refresh repairs the secret.
func (s *RegionService) syncCredentials(ctx context.Context, helper cloud.Helper, r *region.Region, creds *region.Credentials) {
	if s.secrets == nil {
		return
	}
	value, ok := helper.SerializeCredentials(r, creds)
	if !ok {
		return
	}
	upserts := map[string]string{cloud.SecretKey(r.ID): value}
	if err := s.secrets.Update(ctx, s.cfg.SecretName, upserts, nil); err != nil {
		s.secretSyncFailed(ctx, r.ID, err)
	}
}

func (s *RegionService) secretSyncFailed(ctx context.Context, regionID int64, err error) {
	slog.Warn("credentials secret update failed", "region_id", regionID, "secret", s.cfg.SecretName, "error", err)
	if s.metrics != nil {
		s.metrics.SecretSyncErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("secret", s.cfg.SecretName),
		))
	}
}

// currentDefaultID returns the id of the current default region when the
// write is about to replace it.
func (s *RegionService) currentDefaultID(ctx context.Context, becomesDefault bool) int64 {
	if !becomesDefault {
		return 0
	}
	r, err := s.store.GetDefaultRegion(ctx)
	if err != nil {
		return 0
	}
	return r.ID
}

func regionCacheKey(id int64) string {
	return cache.Key("region", id)
}

func (s *RegionService) cached(ctx context.Context, key string) (*region.Region, bool) {
	if s.cache == nil {
		return nil, false
	}
	r, ok, err := cache.GetJSON[region.Region](ctx, s.cache, key)
	if err != nil {
		slog.Debug("region cache get failed", "key", key, "error", err)
	}
	return r, ok
}

func (s *RegionService) fill(ctx context.Context, key string, r *region.Region) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, r, s.cfg.CacheTTL); err != nil {
		slog.Debug("region cache set failed", "key", key, "error", err)
	}
}

func (s *RegionService) invalidate(ctx context.Context, ids ...int64) {
	if s.cache == nil {
		return
	}
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if err := s.cache.Delete(ctx, regionCacheKey(id)); err != nil {
			slog.Debug("region cache delete failed", "region_id", id, "error", err)
		}
	}
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
