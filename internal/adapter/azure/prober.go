// Package azure implements the live Azure checks used when validating
// Azure regions.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/Strob0t/CloudLaunch/internal/cloud"
	"github.com/Strob0t/CloudLaunch/internal/config"
)

const defaultBlobSuffix = "blob.core.windows.net"

var _ cloud.AzureProber = (*Prober)(nil)

// ErrNoSubscription is returned by ResourceGroupExists when neither the call
// nor the configuration names a subscription.
var ErrNoSubscription = errors.New("azure subscription not configured")

// Prober checks storage keys with azblob and resource groups with the
// resource manager.
type Prober struct {
	cred         azcore.TokenCredential
	subscription string
	blobSuffix   string
}

// NewProber builds a prober from cfg. Without a client secret the default
// credential chain (environment, managed identity, CLI) is used.
func NewProber(cfg config.Azure) (*Prober, error) {
	var (
		cred azcore.TokenCredential
		err  error
	)
	if cfg.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	return &Prober{cred: cred, subscription: cfg.Subscription, blobSuffix: defaultBlobSuffix}, nil
}

// ProbeStorage reads the blob service properties with the shared key.
func (p *Prober) ProbeStorage(ctx context.Context, account, key string) error {
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return fmt.Errorf("storage key of %s: %w", account, err)
	}
	url := fmt.Sprintf("https://%s.%s/", account, p.blobSuffix)
	client, err := azblob.NewClientWithSharedKeyCredential(url, cred, nil)
	if err != nil {
		return fmt.Errorf("blob client for %s: %w", account, err)
	}
	if _, err := client.ServiceClient().GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("storage account %s: %w", account, describe(err))
	}
	return nil
}

// ResourceGroupExists asks the resource manager whether group exists.
func (p *Prober) ResourceGroupExists(ctx context.Context, subscription, group string) (bool, error) {
	if subscription == "" {
		subscription = p.subscription
	}
	if subscription == "" {
		return false, ErrNoSubscription
	}
	client, err := armresources.NewResourceGroupsClient(subscription, p.cred, nil)
	if err != nil {
		return false, fmt.Errorf("resource groups client: %w", err)
	}
	resp, err := client.CheckExistence(ctx, group, nil)
	if err != nil {
		return false, fmt.Errorf("check resource group %s: %w", group, describe(err))
	}
	return resp.Success, nil
}

// describe shortens SDK response errors to status and error code.
func describe(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	if respErr.StatusCode == http.StatusForbidden || respErr.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("access denied (%d %s)", respErr.StatusCode, respErr.ErrorCode)
	}
	return fmt.Errorf("azure responded %d %s", respErr.StatusCode, respErr.ErrorCode)
}
