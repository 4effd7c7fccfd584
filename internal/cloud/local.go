package cloud

import (
	"context"

	"github.com/Strob0t/CloudLaunch/internal/domain/region"
)

func localHelper() Helper {
	return Helper{
		Validate: func(_ context.Context, r *region.Region, _ *region.Credentials) error {
			if err := providerMismatch(r, region.ProviderLocal); err != nil {
				return err
			}
			return required("region_code", r.RegionCode)
		},
		AvailableRegions:     func() []string { return nil },
		Merge:                mergeCommon,
		MergeCredentials:     replaceCredentials,
		SerializeCredentials: func(*region.Region, *region.Credentials) (string, bool) { return "", false },
	}
}
