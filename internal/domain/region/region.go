// Package region defines cloud regions, their provider-specific settings
// and the credentials that belong to them.
package region

import (
	"strings"
	"time"
)

// Provider identifies a cloud provider.
type Provider string

const (
	ProviderAWS   Provider = "AWS"
	ProviderAzure Provider = "AZURE"
	ProviderGCP   Provider = "GCP"
	ProviderLocal Provider = "LOCAL"
)

// Providers lists every supported provider in dispatch order.
var Providers = []Provider{ProviderAWS, ProviderAzure, ProviderGCP, ProviderLocal}

// ParseProvider converts a case-insensitive name into a Provider.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// RunShiftPolicy controls whether runs may be restarted in or out of a region.
type RunShiftPolicy struct {
	ShiftEnabled bool `json:"shift_enabled" yaml:"shift_enabled"`
}

// Region is a provider-scoped deployable location.
type Region struct {
	ID          int64     `json:"id"`
	Provider    Provider  `json:"provider"`
	RegionCode  string    `json:"region_code"`
	Name        string    `json:"name"`
	Default     bool      `json:"default"`
	Owner       string    `json:"owner"`
	CreatedDate time.Time `json:"created_date"`

	RunShiftPolicy RunShiftPolicy `json:"run_shift_policy"`

	CORSRules                   string `json:"cors_rules,omitempty"`
	Policy                      string `json:"policy,omitempty"`
	MountStorageRule            string `json:"mount_storage_rule,omitempty"`
	MountFileStorageRule        string `json:"mount_file_storage_rule,omitempty"`
	MountCredentialsRule        string `json:"mount_credentials_rule,omitempty"`
	StorageLifecycleServiceHost string `json:"storage_lifecycle_service_host,omitempty"`

	AWS   *AWSSettings   `json:"aws,omitempty"`
	Azure *AzureSettings `json:"azure,omitempty"`
	GCP   *GCPSettings   `json:"gcp,omitempty"`
}

// AWSSettings holds fields specific to AWS regions.
type AWSSettings struct {
	KMSKeyID              string `json:"kms_key_id,omitempty"`
	KMSKeyARN             string `json:"kms_key_arn,omitempty"`
	Profile               string `json:"profile,omitempty"`
	SSHKeyName            string `json:"ssh_key_name,omitempty"`
	TempCredentialsRole   string `json:"temp_credentials_role,omitempty"`
	IAMRole               string `json:"iam_role,omitempty"`
	S3Endpoint            string `json:"s3_endpoint,omitempty"`
	BackupDuration        int    `json:"backup_duration,omitempty"`
	VersioningEnabled     bool   `json:"versioning_enabled"`
	GlobalDistributionURL string `json:"global_distribution_url,omitempty"`
	DNSHostedZoneID       string `json:"dns_hosted_zone_id,omitempty"`
	DNSHostedZoneBase     string `json:"dns_hosted_zone_base,omitempty"`
}

// AzureSettings holds fields specific to Azure regions.
type AzureSettings struct {
	StorageAccount   string      `json:"storage_account"`
	ResourceGroup    string      `json:"resource_group"`
	Subscription     string      `json:"subscription,omitempty"`
	AuthFile         string      `json:"auth_file,omitempty"`
	SSHPublicKeyPath string      `json:"ssh_public_key_path,omitempty"`
	MeterRegionName  string      `json:"meter_region_name,omitempty"`
	APIURL           string      `json:"api_url,omitempty"`
	PriceOfferID     string      `json:"price_offer_id,omitempty"`
	IPPolicy         AzurePolicy `json:"ip_policy"`
}

// AzurePolicy restricts storage access to an IPv4 range.
type AzurePolicy struct {
	IPMin string `json:"ip_min,omitempty"`
	IPMax string `json:"ip_max,omitempty"`
}

// GCPSettings holds fields specific to GCP regions.
type GCPSettings struct {
	Project             string `json:"project"`
	AuthFile            string `json:"auth_file,omitempty"`
	SSHPublicKeyPath    string `json:"ssh_public_key_path"`
	ImpersonatedAccount string `json:"impersonated_account"`
	ApplicationName     string `json:"application_name,omitempty"`
	CustomInstanceTypes string `json:"custom_instance_types,omitempty"`
}

// Credentials is the secret material of a region. At most one block is set,
// matching the region's provider.
type Credentials struct {
	RegionID int64             `json:"region_id"`
	AWS      *AWSCredentials   `json:"aws,omitempty"`
	Azure    *AzureCredentials `json:"azure,omitempty"`
}

// AWSCredentials is a static access key pair.
type AWSCredentials struct {
	KeyID     string `json:"key_id"`
	AccessKey string `json:"access_key"`
}

// AzureCredentials is the storage account key.
type AzureCredentials struct {
	StorageAccountKey string `json:"storage_account_key"`
}

// FileShareMount is a file share attached to a region. Regions with mounts
// cannot be deleted.
type FileShareMount struct {
	ID           int64  `json:"id"`
	RegionID     int64  `json:"region_id"`
	MountRoot    string `json:"mount_root"`
	MountType    string `json:"mount_type"`
	MountOptions string `json:"mount_options,omitempty"`
}
