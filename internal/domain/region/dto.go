package region

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Strob0t/CloudLaunch/internal/domain"
)

var dtoValidate = validator.New(validator.WithRequiredStructEnabled())

// DTO is the flat create/update request for a region. Credential fields are
// split off into Credentials by Split.
type DTO struct {
	Provider       string         `json:"provider" validate:"required,oneof=AWS AZURE GCP LOCAL aws azure gcp local"`
	RegionCode     string         `json:"region_code" validate:"required,max=64"`
	Name           string         `json:"name" validate:"required,max=255"`
	Default        bool           `json:"default"`
	RunShiftPolicy RunShiftPolicy `json:"run_shift_policy"`

	CORSRules                   string `json:"cors_rules,omitempty"`
	Policy                      string `json:"policy,omitempty"`
	MountStorageRule            string `json:"mount_storage_rule,omitempty" validate:"omitempty,oneof=NONE ALL CLOUD"`
	MountFileStorageRule        string `json:"mount_file_storage_rule,omitempty" validate:"omitempty,oneof=NONE ALL CLOUD"`
	MountCredentialsRule        string `json:"mount_credentials_rule,omitempty" validate:"omitempty,oneof=NONE ALL CLOUD"`
	StorageLifecycleServiceHost string `json:"storage_lifecycle_service_host,omitempty" validate:"omitempty,url"`

	AWS   *AWSSettings   `json:"aws,omitempty"`
	Azure *AzureSettings `json:"azure,omitempty"`
	GCP   *GCPSettings   `json:"gcp,omitempty"`

	AWSKeyID          string `json:"aws_key_id,omitempty"`
	AWSAccessKey      string `json:"aws_access_key,omitempty"`
	StorageAccountKey string `json:"storage_account_key,omitempty"`
}

// Validate runs the structural checks that do not depend on the provider.
func (d *DTO) Validate() error {
	err := dtoValidate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.Invalid(strings.ToLower(fe.Field()), stringValue(fe.Value()), "failed %q check", fe.Tag())
	}
	return domain.Invalid("region", "", "%v", err)
}

// Split translates the DTO into a Region and its Credentials. Credentials is
// nil when the DTO carries no secret material.
func (d *DTO) Split() (Region, *Credentials) {
	provider, _ := ParseProvider(d.Provider)
	r := Region{
		Provider:                    provider,
		RegionCode:                  strings.TrimSpace(d.RegionCode),
		Name:                        strings.TrimSpace(d.Name),
		Default:                     d.Default,
		RunShiftPolicy:              d.RunShiftPolicy,
		CORSRules:                   d.CORSRules,
		Policy:                      d.Policy,
		MountStorageRule:            d.MountStorageRule,
		MountFileStorageRule:        d.MountFileStorageRule,
		MountCredentialsRule:        d.MountCredentialsRule,
		StorageLifecycleServiceHost: d.StorageLifecycleServiceHost,
	}
	switch provider {
	case ProviderAWS:
		r.AWS = d.AWS
		if r.AWS == nil {
			r.AWS = &AWSSettings{}
		}
		if d.AWSKeyID != "" || d.AWSAccessKey != "" {
			return r, &Credentials{AWS: &AWSCredentials{KeyID: d.AWSKeyID, AccessKey: d.AWSAccessKey}}
		}
	case ProviderAzure:
		r.Azure = d.Azure
		if r.Azure == nil {
			r.Azure = &AzureSettings{}
		}
		return r, &Credentials{Azure: &AzureCredentials{StorageAccountKey: d.StorageAccountKey}}
	case ProviderGCP:
		r.GCP = d.GCP
		if r.GCP == nil {
			r.GCP = &GCPSettings{}
		}
	}
	return r, nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
