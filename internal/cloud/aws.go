package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/minio/minio-go/v7/pkg/policy"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
)

func awsHelper() Helper {
	return Helper{
		Validate:             validateAWS,
		AvailableRegions:     AWSRegions,
		Merge:                mergeAWS,
		MergeCredentials:     replaceCredentials,
		SerializeCredentials: serializeAWS,
	}
}

// AWSRegions lists the commercial AWS partition's region codes, sorted.
func AWSRegions() []string {
	regions := endpoints.AwsPartition().Regions()
	codes := make([]string, 0, len(regions))
	for _, r := range regions {
		codes = append(codes, r.ID())
	}
	sort.Strings(codes)
	return codes
}

func validateAWS(_ context.Context, r *region.Region, _ *region.Credentials) error {
	if err := providerMismatch(r, region.ProviderAWS); err != nil {
		return err
	}
	if err := inCatalog("region_code", r.RegionCode, AWSRegions()); err != nil {
		return err
	}
	if r.CORSRules != "" {
		if err := validateCORS(r.CORSRules); err != nil {
			return domain.Invalid("cors_rules", r.CORSRules, "%v", err)
		}
	}
	if r.Policy != "" {
		if err := validateBucketPolicy(r.Policy); err != nil {
			return domain.Invalid("policy", r.Policy, "%v", err)
		}
	}
	return nil
}

// corsRule mirrors the S3 CORS rule document.
type corsRule struct {
	ID             string   `json:"ID,omitempty"`
	AllowedHeaders []string `json:"AllowedHeaders,omitempty"`
	AllowedMethods []string `json:"AllowedMethods"`
	AllowedOrigins []string `json:"AllowedOrigins"`
	ExposeHeaders  []string `json:"ExposeHeaders,omitempty"`
	MaxAgeSeconds  int      `json:"MaxAgeSeconds,omitempty"`
}

var corsMethods = map[string]bool{"GET": true, "PUT": true, "POST": true, "DELETE": true, "HEAD": true}

func validateCORS(doc string) error {
	var rules []corsRule
	if err := strictDecode(doc, &rules); err != nil {
		return err
	}
	for i, rule := range rules {
		if len(rule.AllowedMethods) == 0 || len(rule.AllowedOrigins) == 0 {
			return errors.New("each CORS rule needs AllowedMethods and AllowedOrigins")
		}
		for _, m := range rule.AllowedMethods {
			if !corsMethods[strings.ToUpper(m)] {
				return fmt.Errorf("rule %d: unsupported method %s", i, m)
			}
		}
	}
	return nil
}

func validateBucketPolicy(doc string) error {
	var p policy.BucketAccessPolicy
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return err
	}
	if len(p.Statements) == 0 {
		return errors.New("policy has no statements")
	}
	for _, st := range p.Statements {
		if st.Effect != "Allow" && st.Effect != "Deny" {
			return errors.New("statement effect must be Allow or Deny")
		}
		if st.Actions.IsEmpty() {
			return errors.New("statement has no actions")
		}
	}
	return nil
}

func strictDecode(doc string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON document")
	}
	return nil
}

func mergeAWS(original, updated *region.Region) region.Region {
	out := mergeCommon(original, updated)
	if updated.AWS != nil {
		s := *updated.AWS
		out.AWS = &s
	}
	return out
}

func serializeAWS(_ *region.Region, creds *region.Credentials) (string, bool) {
	if creds == nil || creds.AWS == nil || creds.AWS.KeyID == "" {
		return "", false
	}
	return encodeJSON(map[string]string{
		"key_id":     creds.AWS.KeyID,
		"access_key": creds.AWS.AccessKey,
	})
}

func encodeJSON(v map[string]string) (string, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(b), true
}
