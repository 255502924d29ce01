// Package di wires the application's services together. Capability
// implementations (signer provider, message hasher, checkpoint store) are
// chosen here once; nothing downstream branches on environment.
package di

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/stablebridge/bridge_service/internal/domain/chain"
	"github.com/stablebridge/bridge_service/internal/domain/services/attestation"
	"github.com/stablebridge/bridge_service/internal/domain/services/burn"
	"github.com/stablebridge/bridge_service/internal/domain/services/mint"
	"github.com/stablebridge/bridge_service/internal/domain/services/registry"
	"github.com/stablebridge/bridge_service/internal/domain/services/transfer"
	"github.com/stablebridge/bridge_service/internal/domain/services/validation"
	"github.com/stablebridge/bridge_service/internal/infrastructure/adapters/iris"
	"github.com/stablebridge/bridge_service/internal/infrastructure/adapters/simchain"
	"github.com/stablebridge/bridge_service/internal/infrastructure/cache"
	"github.com/stablebridge/bridge_service/internal/infrastructure/config"
	"github.com/stablebridge/bridge_service/internal/infrastructure/repositories"
	"github.com/stablebridge/bridge_service/internal/workers/transfer_resumer"
	"github.com/stablebridge/bridge_service/pkg/logger"
	"github.com/stablebridge/bridge_service/pkg/metrics"
)

// Container holds the wired application services
type Container struct {
	Config  *config.Config
	DB      *sqlx.DB
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	Registry     *registry.Registry
	Orchestrator *transfer.Orchestrator
	Resumer      *transfer_resumer.Worker

	store transfer.CheckpointStore
	cache cache.RedisClient
}

// NewContainer builds the full service graph. db may be nil, in which case
// checkpoints live in process memory.
func NewContainer(cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		DB:      db,
		Logger:  log,
		Metrics: metrics.New(prometheus.DefaultRegisterer),
	}

	reg, err := registry.New(cfg.Chains, cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("build chain registry: %w", err)
	}
	c.Registry = reg

	if db != nil {
		c.store = repositories.NewCheckpointRepository(db)
	} else {
		c.store = repositories.NewMemoryCheckpointStore()
	}

	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.cache = redisClient
	}

	provider, hasher := buildChainProvider(reg)
	locks := chain.NewSignerLocks()

	authority := iris.NewClient(iris.Config{
		BaseURL:     cfg.Attestation.BaseURL,
		Environment: cfg.Attestation.Environment,
		Timeout:     cfg.Attestation.ClientTimeout(),
	}, log.Zap())

	attester := attestation.NewClient(authority, c.cache, hasher, attestation.Config{
		InitialInterval: cfg.Attestation.PollInitial(),
		MaxInterval:     cfg.Attestation.PollMax(),
		OverallTimeout:  cfg.Attestation.PollDeadline(),
		CacheTTL:        cfg.Attestation.CacheTTL(),
	}, log.Zap())

	burner := burn.NewExecutor(provider, locks, reg, burn.Config{
		ConfirmTimeout: cfg.Burn.ConfirmTimeout(),
	}, log.Zap())

	minter := mint.NewExecutor(provider, locks, reg, hasher, log.Zap())

	validator := validation.NewValidator(reg)
	events := transfer.NewEventBus()

	c.Orchestrator = transfer.NewOrchestrator(
		validator, burner, attester, minter,
		c.store, events, c.Metrics, log.Zap(),
	)

	c.Resumer = transfer_resumer.NewWorker(c.store, c.Orchestrator, &transfer_resumer.Config{
		Interval:   cfg.Workers.ResumeEvery(),
		StaleAfter: cfg.Workers.StaleAfter(),
		BatchSize:  cfg.Workers.ResumeBatchSize,
	}, log.Zap())

	return c, nil
}

// Store exposes the checkpoint store for health checks and tooling
func (c *Container) Store() transfer.CheckpointStore {
	return c.store
}

// Close releases the container's long-lived connections
func (c *Container) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// buildChainProvider constructs the simulated signer provider with one
// funded signer per registered chain. The sha256 digest doubles as the
// protocol message hasher.
func buildChainProvider(reg *registry.Registry) (chain.SignerProvider, chain.MessageHasher) {
	provider := simchain.NewProvider()
	for _, desc := range reg.Chains() {
		address := simchain.Digest([]byte("account:" + string(desc.Chain)))
		if len(address) > 2+desc.AddressHexLen {
			address = address[:2+desc.AddressHexLen]
		}
		provider.Connect(desc.Chain, simchain.NewSigner(
			desc.Chain, address, decimal.NewFromInt(1_000_000)))
	}
	return provider, simchain.Digest
}
