package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/logger"
)

var (
	regionFile     string
	regionToken    string
	regionProvider string
	regionCode     string
)

var regionCmd = &cobra.Command{
	Use:   "region",
	Short: "Manage cloud regions",
}

var regionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered regions",
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		regions, err := a.regions.LoadAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), regions)
	}),
}

var regionGetCmd = &cobra.Command{
	Use:   "get NAME_OR_ID | --provider P --code C",
	Short: "Show one region",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		r, err := lookupRegion(cmd, a, args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	}),
}

func lookupRegion(cmd *cobra.Command, a *app, args []string) (*region.Region, error) {
	switch {
	case len(args) == 1 && regionProvider == "" && regionCode == "":
		return a.regions.LoadByNameOrID(cmd.Context(), args[0])
	case len(args) == 0 && regionProvider != "" && regionCode != "":
		p, ok := region.ParseProvider(regionProvider)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", regionProvider)
		}
		return a.regions.LoadByProviderAndRegionCode(cmd.Context(), p, regionCode)
	default:
		return nil, errors.New("give either NAME_OR_ID or both --provider and --code")
	}
}

var regionCreateCmd = &cobra.Command{
	Use:   "create -f region.json",
	Short: "Register a region",
	Long: `Register a region from a JSON document. Credential fields
(aws_key_id, aws_access_key, storage_account_key) are stored encrypted and
synced into the credentials secret. The caller must be an administrator and
becomes the owner of the region.`,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		dto, err := readDTO(regionFile)
		if err != nil {
			return err
		}
		ctx, subject, err := a.adminContext(cmd.Context(), regionToken)
		if err != nil {
			return err
		}
		r, err := a.regions.Create(ctx, dto, subject)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	}),
}

var regionUpdateCmd = &cobra.Command{
	Use:   "update ID -f region.json",
	Short: "Update a region in place",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("region id %q: %w", args[0], err)
		}
		dto, err := readDTO(regionFile)
		if err != nil {
			return err
		}
		ctx, _, err := a.adminContext(cmd.Context(), regionToken)
		if err != nil {
			return err
		}
		r, err := a.regions.Update(ctx, id, dto)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	}),
}

var regionDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a region without file share mounts",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("region id %q: %w", args[0], err)
		}
		ctx, _, err := a.adminContext(cmd.Context(), regionToken)
		if err != nil {
			return err
		}
		r, err := a.regions.Delete(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	}),
}

var regionAvailableCmd = &cobra.Command{
	Use:   "available PROVIDER",
	Short: "List the region codes a provider offers",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		p, ok := region.ParseProvider(args[0])
		if !ok {
			return fmt.Errorf("unknown provider %q", args[0])
		}
		codes, err := a.regions.LoadAllAvailable(p)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), codes)
	}),
}

var regionRefreshSecretCmd = &cobra.Command{
	Use:   "refresh-secret",
	Short: "Rebuild the credentials secret from the registry",
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		return a.regions.RefreshCredentialsSecret(cmd.Context())
	}),
}

func init() {
	for _, c := range []*cobra.Command{regionCreateCmd, regionUpdateCmd} {
		c.Flags().StringVarP(&regionFile, "file", "f", "", "region JSON document (- for stdin)")
		_ = c.MarkFlagRequired("file")
	}
	for _, c := range []*cobra.Command{regionCreateCmd, regionUpdateCmd, regionDeleteCmd} {
		c.Flags().StringVar(&regionToken, "token", os.Getenv("CLOUDLAUNCH_TOKEN"), "OIDC ID token of an administrator")
	}
	regionGetCmd.Flags().StringVar(&regionProvider, "provider", "", "provider of the region (with --code)")
	regionGetCmd.Flags().StringVar(&regionCode, "code", "", "provider region code (with --provider)")

	regionCmd.AddCommand(regionListCmd, regionGetCmd, regionCreateCmd, regionUpdateCmd,
		regionDeleteCmd, regionAvailableCmd, regionRefreshSecretCmd)
	rootCmd.AddCommand(regionCmd)
}

// withApp wires the app for one command invocation and tags the context
// with a fresh request id.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logger.WithRequestID(cmd.Context(), uuid.NewString())
		cmd.SetContext(ctx)
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func readDTO(path string) (*region.DTO, error) {
	var dto region.DTO
	if err := readJSON(path, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// readJSON decodes the file at path, or stdin for "-", into v. Unknown
// fields are rejected.
func readJSON(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
