package cloud

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/Strob0t/CloudLaunch/internal/domain/region"
)

func gcpHelper(regions []string, readFile func(string) ([]byte, error)) Helper {
	catalog := append([]string(nil), regions...)
	return Helper{
		Validate:             validateGCP,
		AvailableRegions:     func() []string { return append([]string(nil), catalog...) },
		Merge:                mergeGCP,
		MergeCredentials:     replaceCredentials,
		SerializeCredentials: func(r *region.Region, _ *region.Credentials) (string, bool) { return serializeGCP(r, readFile) },
	}
}

func validateGCP(_ context.Context, r *region.Region, _ *region.Credentials) error {
	if err := providerMismatch(r, region.ProviderGCP); err != nil {
		return err
	}
	if err := required("region_code", r.RegionCode); err != nil {
		return err
	}
	s := r.GCP
	if s == nil {
		s = &region.GCPSettings{}
	}
	if err := required("project", s.Project); err != nil {
		return err
	}
	if err := required("ssh_public_key_path", s.SSHPublicKeyPath); err != nil {
		return err
	}
	return required("impersonated_account", s.ImpersonatedAccount)
}

func mergeGCP(original, updated *region.Region) region.Region {
	out := mergeCommon(original, updated)
	if updated.GCP != nil {
		s := *updated.GCP
		out.GCP = &s
	}
	return out
}

// serializeGCP emits the auth file contents. A read failure is logged and
// produces no entry.
func serializeGCP(r *region.Region, readFile func(string) ([]byte, error)) (string, bool) {
	if r.GCP == nil || r.GCP.AuthFile == "" {
		return "", false
	}
	data, err := readFile(r.GCP.AuthFile)
	if err != nil {
		slog.Warn("read gcp auth file", "region_id", r.ID, "path", r.GCP.AuthFile, "error", err)
		return "", false
	}
	return base64.StdEncoding.EncodeToString(data), true
}
