package cloud

import (
	"context"
	"net/netip"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
)

// AzureProber performs live checks against an Azure subscription.
type AzureProber interface {
	// ProbeStorage fails when account and key cannot access blob storage.
	ProbeStorage(ctx context.Context, account, key string) error
	// ResourceGroupExists reports whether group exists in subscription. An
	// empty subscription means the prober's default.
	ResourceGroupExists(ctx context.Context, subscription, group string) (bool, error)
}

func azureHelper(prober AzureProber, timeout time.Duration) Helper {
	return Helper{
		Validate: func(ctx context.Context, r *region.Region, creds *region.Credentials) error {
			return validateAzure(ctx, prober, timeout, r, creds)
		},
		AvailableRegions:     AzureRegions,
		Merge:                mergeAzure,
		MergeCredentials:     mergeAzureCredentials,
		SerializeCredentials: serializeAzure,
	}
}

func validateAzure(ctx context.Context, prober AzureProber, timeout time.Duration, r *region.Region, creds *region.Credentials) error {
	if err := providerMismatch(r, region.ProviderAzure); err != nil {
		return err
	}
	if err := inCatalog("region_code", r.RegionCode, AzureRegions()); err != nil {
		return err
	}
	s := r.Azure
	if s == nil {
		return domain.Invalid("storage_account", "", "is required")
	}
	if err := required("storage_account", s.StorageAccount); err != nil {
		return err
	}
	var key string
	if creds != nil && creds.Azure != nil {
		key = creds.Azure.StorageAccountKey
	}
	if err := required("storage_account_key", key); err != nil {
		return err
	}
	if err := required("resource_group", s.ResourceGroup); err != nil {
		return err
	}
	if err := validateIPRange(s.IPPolicy); err != nil {
		return err
	}
	if prober == nil {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := prober.ProbeStorage(probeCtx, s.StorageAccount, key); err != nil {
		return domain.Invalid("storage_account", s.StorageAccount, "storage account check failed: %v", err)
	}
	exists, err := prober.ResourceGroupExists(probeCtx, s.Subscription, s.ResourceGroup)
	if err != nil {
		return domain.Invalid("resource_group", s.ResourceGroup, "resource group check failed: %v", err)
	}
	if !exists {
		return domain.Invalid("resource_group", s.ResourceGroup, "resource group does not exist")
	}
	return nil
}

// validateIPRange requires both bounds or neither, each a valid IPv4
// address, with min <= max.
func validateIPRange(p region.AzurePolicy) error {
	if p.IPMin == "" && p.IPMax == "" {
		return nil
	}
	if p.IPMin == "" {
		return domain.Invalid("ip_min", "", "is required when ip_max is set")
	}
	if p.IPMax == "" {
		return domain.Invalid("ip_max", "", "is required when ip_min is set")
	}
	lo, err := netip.ParseAddr(p.IPMin)
	if err != nil || !lo.Is4() {
		return domain.Invalid("ip_min", p.IPMin, "must be an IPv4 address")
	}
	hi, err := netip.ParseAddr(p.IPMax)
	if err != nil || !hi.Is4() {
		return domain.Invalid("ip_max", p.IPMax, "must be an IPv4 address")
	}
	if lo.Compare(hi) > 0 {
		return domain.Invalid("ip_min", p.IPMin, "must not be greater than ip_max %s", p.IPMax)
	}
	return nil
}

func mergeAzure(original, updated *region.Region) region.Region {
	out := mergeCommon(original, updated)
	if updated.Azure != nil {
		s := *updated.Azure
		out.Azure = &s
	}
	return out
}

// mergeAzureCredentials keeps the stored key when the update leaves it blank.
func mergeAzureCredentials(old, incoming *region.Credentials) *region.Credentials {
	if incoming == nil {
		return old
	}
	if old == nil || old.Azure == nil {
		return incoming
	}
	if incoming.Azure == nil || incoming.Azure.StorageAccountKey == "" {
		out := *incoming
		out.Azure = &region.AzureCredentials{StorageAccountKey: old.Azure.StorageAccountKey}
		return &out
	}
	return incoming
}

func serializeAzure(r *region.Region, creds *region.Credentials) (string, bool) {
	if r.Azure == nil || creds == nil || creds.Azure == nil {
		return "", false
	}
	return encodeJSON(map[string]string{
		"storage_account": r.Azure.StorageAccount,
		"storage_key":     creds.Azure.StorageAccountKey,
	})
}
