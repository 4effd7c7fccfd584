package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/CloudLaunch/internal/adapter/azure"
	"github.com/Strob0t/CloudLaunch/internal/adapter/kubernetes"
	cfnats "github.com/Strob0t/CloudLaunch/internal/adapter/nats"
	"github.com/Strob0t/CloudLaunch/internal/adapter/natskv"
	cfoidc "github.com/Strob0t/CloudLaunch/internal/adapter/oidc"
	cfotel "github.com/Strob0t/CloudLaunch/internal/adapter/otel"
	"github.com/Strob0t/CloudLaunch/internal/adapter/postgres"
	"github.com/Strob0t/CloudLaunch/internal/adapter/ristretto"
	"github.com/Strob0t/CloudLaunch/internal/adapter/tiered"
	"github.com/Strob0t/CloudLaunch/internal/cloud"
	"github.com/Strob0t/CloudLaunch/internal/config"
	"github.com/Strob0t/CloudLaunch/internal/domain/capability"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/port/cache"
	"github.com/Strob0t/CloudLaunch/internal/port/secretstore"
	"github.com/Strob0t/CloudLaunch/internal/resilience"
	"github.com/Strob0t/CloudLaunch/internal/secrets"
	"github.com/Strob0t/CloudLaunch/internal/service"
)

// secretsBucket holds the credentials secret when the natskv backend is used.
const secretsBucket = "cloudlaunch-secrets"

// app is the wired object graph shared by all subcommands.
type app struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	queue   *cfnats.Queue
	store   *postgres.Store
	breaker *resilience.Breaker
	metrics *cfotel.Metrics
	regions *service.RegionService
	runs    *service.RunService
	shifts  *service.ShiftService
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects to Postgres, NATS and Kubernetes and builds the services.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	shutdownOtel, err := cfotel.Setup(ctx, cfg.OTEL, cfg.Logging.Service)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	a.closers = append(a.closers, func() { _ = shutdownOtel(context.Background()) })

	if a.metrics, err = cfotel.NewMetrics(); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	loaders := []secrets.Loader{secrets.EnvLoader(cfg.Crypto.KeyEnv)}
	if cfg.Crypto.KeyDir != "" {
		loaders = append(loaders, secrets.DirLoader(cfg.Crypto.KeyDir, cfg.Crypto.KeyEnv))
	}
	vault, err := secrets.NewVault(loaders...)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	cipher, err := secrets.CipherFromVault(vault, cfg.Crypto.KeyEnv)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}

	if a.pool, err = postgres.NewPool(ctx, cfg.Postgres); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, a.pool.Close)
	a.store = postgres.NewStore(a.pool, cipher)
	slog.Info("postgres connected")

	if a.queue, err = cfnats.Connect(ctx, cfg.NATS.URL); err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.queue.Close() })

	a.breaker = resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithFailureFilter(kubernetes.TripsBreaker),
		resilience.WithStateChange(func(from, to resilience.State) {
			slog.Warn("kubernetes circuit breaker", "from", from.String(), "to", to.String())
			a.metrics.BreakerChanges.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("state", to.String())))
		}))
	k8s, err := kubernetes.NewClient(cfg.Kubernetes, a.breaker)
	if err != nil {
		return nil, fmt.Errorf("kubernetes: %w", err)
	}

	regionCache, err := a.regionCache(ctx)
	if err != nil {
		return nil, err
	}
	secretStore, err := a.secretStore(ctx, k8s)
	if err != nil {
		return nil, err
	}

	var prober cloud.AzureProber
	if p, perr := azure.NewProber(cfg.Azure); perr != nil {
		slog.Warn("azure probes disabled", "error", perr)
	} else {
		prober = p
	}
	helpers := cloud.NewHelpers(cloud.Options{
		Azure:             prober,
		AzureProbeTimeout: cfg.Azure.ProbeTimeout,
		GCPRegions:        cfg.Cloud.GCPRegions,
	})

	provider, _ := region.ParseProvider(cfg.Cloud.DefaultProvider)
	a.regions = service.NewRegionService(a.store, helpers, secretStore, regionCache, service.RegionConfig{
		DefaultProvider: provider,
		SecretName:      cfg.Cloud.SecretName,
		CacheTTL:        cfg.Cache.L1TTL,
	})
	a.regions.SetMetrics(a.metrics)

	a.runs = service.NewRunService(a.store, kubernetes.NewLauncher(k8s, cfg.Kubernetes.ServiceAccount), a.queue)

	a.shifts = service.NewShiftService(a.regions, a.runs, a.store, service.ShiftConfig{
		Enabled:               cfg.Shift.Enabled,
		MaxPerSecond:          cfg.Shift.MaxPerSecond,
		Burst:                 cfg.Shift.Burst,
		CloudDependentSchemes: cfg.Launch.CloudDependentSchemes,
	})
	a.shifts.SetMetrics(a.metrics)
	return a, nil
}

// regionCache builds the ristretto L1, fronting a NATS KV L2 when a bucket
// is configured.
func (a *app) regionCache(ctx context.Context) (cache.Cache, error) {
	l1, err := ristretto.New(a.cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.closers = append(a.closers, l1.Close)
	if a.cfg.Cache.L2Bucket == "" {
		return l1, nil
	}
	kv, err := a.queue.KeyValue(ctx, a.cfg.Cache.L2Bucket, a.cfg.Cache.L2TTL)
	if err != nil {
		return nil, fmt.Errorf("l2 cache: %w", err)
	}
	return tiered.New(l1, natskv.New(kv), a.cfg.Cache.L1TTL), nil
}

func (a *app) secretStore(ctx context.Context, k8s *kubernetes.Client) (secretstore.Store, error) {
	switch a.cfg.Cloud.SecretBackend {
	case "natskv":
		kv, err := a.queue.KeyValue(ctx, secretsBucket, 0)
		if err != nil {
			return nil, fmt.Errorf("secret bucket: %w", err)
		}
		return natskv.NewSecretStore(kv), nil
	default:
		return kubernetes.NewSecretStore(k8s), nil
	}
}

// launchService builds the launch orchestrator. It needs the OIDC issuer
// because every launch is authorized against the caller's token.
func (a *app) launchService(ctx context.Context) (*service.LaunchService, *cfoidc.Authorizer, error) {
	az, err := cfoidc.NewAuthorizer(ctx, a.cfg.Auth)
	if err != nil {
		return nil, nil, fmt.Errorf("oidc: %w", err)
	}
	caps, err := loadCapabilities(a.cfg.Launch.CapabilitiesFile)
	if err != nil {
		return nil, nil, err
	}
	priceTypes := make([]run.PriceType, 0, len(a.cfg.Launch.AllowedPriceTypes))
	for _, pt := range a.cfg.Launch.AllowedPriceTypes {
		priceTypes = append(priceTypes, run.PriceType(strings.ToLower(pt)))
	}
	svc := service.NewLaunchService(a.regions, a.runs, a.store, service.NewInstanceService(a.store),
		capability.NewProcessor(caps), az, service.LaunchConfig{
			AllowedInstanceTypes:  a.cfg.Launch.AllowedInstanceTypes,
			AllowedPriceTypes:     priceTypes,
			DefaultDiskGB:         a.cfg.Launch.DefaultDiskGB,
			CloudDependentSchemes: a.cfg.Launch.CloudDependentSchemes,
		})
	svc.SetMetrics(a.metrics)
	return svc, az, nil
}

// adminContext authenticates token and lets the region service check the
// caller's admin claim. It returns ctx carrying the identity and its subject.
func (a *app) adminContext(ctx context.Context, token string) (context.Context, string, error) {
	az, err := cfoidc.NewAuthorizer(ctx, a.cfg.Auth)
	if err != nil {
		return nil, "", fmt.Errorf("oidc: %w", err)
	}
	id, err := az.Authenticate(ctx, token)
	if err != nil {
		return nil, "", err
	}
	a.regions.SetAuthorizer(az)
	return cfoidc.ContextWithIdentity(ctx, id), id.Subject, nil
}

func loadCapabilities(path string) (capability.Set, error) {
	if path == "" {
		return nil, nil
	}
	caps, err := capability.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	slog.Info("launch capabilities loaded", "path", path, "count", len(caps))
	return caps, nil
}
