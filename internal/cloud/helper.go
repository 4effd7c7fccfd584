// Package cloud holds the per-provider region helpers: validation, region
// catalogs, whitelisted merges and credential serialization for the
// external secret store.
package cloud

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
)

// Helper is the function set one provider implements.
type Helper struct {
	// Validate checks provider-specific required fields. Failures are
	// *domain.ValidationError values naming the field.
	Validate func(ctx context.Context, r *region.Region, creds *region.Credentials) error
	// AvailableRegions lists the region codes the provider offers.
	AvailableRegions func() []string
	// Merge returns original with the provider's whitelisted fields taken
	// from updated. Neither argument is modified.
	Merge func(original, updated *region.Region) region.Region
	// MergeCredentials combines stored and incoming credentials on update.
	MergeCredentials func(old, incoming *region.Credentials) *region.Credentials
	// SerializeCredentials renders the secret store value for a region.
	// ok is false when the region contributes no entry.
	SerializeCredentials func(r *region.Region, creds *region.Credentials) (value string, ok bool)
}

// Helpers is the provider dispatch table.
type Helpers map[region.Provider]Helper

// For returns the helper of p.
func (h Helpers) For(p region.Provider) (Helper, error) {
	helper, ok := h[p]
	if !ok {
		return Helper{}, domain.Invalid("provider", string(p), "unsupported cloud provider")
	}
	return helper, nil
}

// Options configures NewHelpers.
type Options struct {
	// Azure performs live storage and resource group checks.
	Azure AzureProber
	// AzureProbeTimeout bounds each Azure probe. Zero means 15s.
	AzureProbeTimeout time.Duration
	// GCPRegions is the operator's GCP region preference list.
	GCPRegions []string
	// ReadFile reads GCP auth files. Defaults to os.ReadFile.
	ReadFile func(name string) ([]byte, error)
}

// NewHelpers builds the dispatch table for all providers.
func NewHelpers(opts Options) Helpers {
	if opts.AzureProbeTimeout <= 0 {
		opts.AzureProbeTimeout = 15 * time.Second
	}
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	return Helpers{
		region.ProviderAWS:   awsHelper(),
		region.ProviderAzure: azureHelper(opts.Azure, opts.AzureProbeTimeout),
		region.ProviderGCP:   gcpHelper(opts.GCPRegions, opts.ReadFile),
		region.ProviderLocal: localHelper(),
	}
}

// SecretKey is the secret store key holding a region's credentials.
func SecretKey(regionID int64) string {
	return strconv.FormatInt(regionID, 10)
}

// replaceCredentials is the default MergeCredentials: the incoming value wins.
func replaceCredentials(_, incoming *region.Credentials) *region.Credentials {
	return incoming
}

// mergeCommon copies the fields every provider whitelists.
func mergeCommon(original, updated *region.Region) region.Region {
	out := *original
	out.Name = updated.Name
	out.Default = updated.Default
	out.RunShiftPolicy = updated.RunShiftPolicy
	out.CORSRules = updated.CORSRules
	out.Policy = updated.Policy
	out.MountStorageRule = updated.MountStorageRule
	out.MountFileStorageRule = updated.MountFileStorageRule
	out.MountCredentialsRule = updated.MountCredentialsRule
	out.StorageLifecycleServiceHost = updated.StorageLifecycleServiceHost
	return out
}

func required(field, value string) error {
	if value == "" {
		return domain.Invalid(field, "", "is required")
	}
	return nil
}

func inCatalog(field, code string, catalog []string) error {
	if err := required(field, code); err != nil {
		return err
	}
	for _, c := range catalog {
		if c == code {
			return nil
		}
	}
	return domain.Invalid(field, code, "unknown region code")
}

func providerMismatch(r *region.Region, want region.Provider) error {
	if r.Provider != want {
		return fmt.Errorf("%s helper got %s region: %w", want, r.Provider, domain.ErrConflict)
	}
	return nil
}
