package region

import (
	"errors"
	"testing"

	"github.com/Strob0t/CloudLaunch/internal/domain"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in   string
		want Provider
		ok   bool
	}{
		{"AWS", ProviderAWS, true},
		{"azure", ProviderAzure, true},
		{" gcp ", ProviderGCP, true},
		{"Local", ProviderLocal, true},
		{"openstack", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseProvider(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseProvider(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDTOValidate(t *testing.T) {
	valid := func() DTO {
		return DTO{Provider: "AWS", RegionCode: "us-east-1", Name: "aws-east"}
	}
	tests := []struct {
		name    string
		mutate  func(*DTO)
		wantErr bool
	}{
		{"valid", func(*DTO) {}, false},
		{"lowercase provider", func(d *DTO) { d.Provider = "azure" }, false},
		{"unknown provider", func(d *DTO) { d.Provider = "openstack" }, true},
		{"missing code", func(d *DTO) { d.RegionCode = "" }, true},
		{"missing name", func(d *DTO) { d.Name = "" }, true},
		{"bad mount rule", func(d *DTO) { d.MountStorageRule = "SOME" }, true},
		{"good mount rule", func(d *DTO) { d.MountCredentialsRule = "CLOUD" }, false},
		{"bad lifecycle host", func(d *DTO) { d.StorageLifecycleServiceHost = "not a url" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDTOSplitAWS(t *testing.T) {
	d := DTO{
		Provider: "aws", RegionCode: " us-east-1 ", Name: "east", Default: true,
		AWSKeyID: "AKIA", AWSAccessKey: "secret",
	}
	r, creds := d.Split()
	if r.Provider != ProviderAWS || r.RegionCode != "us-east-1" || !r.Default {
		t.Errorf("region = %+v", r)
	}
	if r.AWS == nil || r.Azure != nil || r.GCP != nil {
		t.Errorf("settings blocks = %+v %+v %+v", r.AWS, r.Azure, r.GCP)
	}
	if creds == nil || creds.AWS == nil || creds.AWS.KeyID != "AKIA" || creds.AWS.AccessKey != "secret" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestDTOSplitAWSWithoutKeys(t *testing.T) {
	d := DTO{Provider: "AWS", RegionCode: "eu-west-1", Name: "eu"}
	if _, creds := d.Split(); creds != nil {
		t.Errorf("expected no credentials, got %+v", creds)
	}
}

func TestDTOSplitAzureAlwaysCarriesCredentials(t *testing.T) {
	d := DTO{
		Provider: "AZURE", RegionCode: "westeurope", Name: "az",
		Azure:             &AzureSettings{StorageAccount: "acct", ResourceGroup: "rg"},
		StorageAccountKey: "k3y",
	}
	r, creds := d.Split()
	if r.Azure == nil || r.Azure.StorageAccount != "acct" {
		t.Errorf("azure settings = %+v", r.Azure)
	}
	if creds == nil || creds.Azure == nil || creds.Azure.StorageAccountKey != "k3y" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestDTOSplitGCPIgnoresForeignBlocks(t *testing.T) {
	d := DTO{
		Provider: "GCP", RegionCode: "us-central1", Name: "gcp",
		AWS:      &AWSSettings{Profile: "p"},
		AWSKeyID: "AKIA",
	}
	r, creds := d.Split()
	if r.GCP == nil || r.AWS != nil {
		t.Errorf("settings blocks = aws %+v gcp %+v", r.AWS, r.GCP)
	}
	if creds != nil {
		t.Errorf("expected no credentials, got %+v", creds)
	}
}
