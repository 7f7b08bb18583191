package app

import (
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/landedcost"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/procurement"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Services is the domain graph shared by the api and cron-worker binaries.
type Services struct {
	Catalog     catalog.Repository
	Stock       stock.Service
	Orders      orders.Service
	Ledger      ledger.Service
	LandedCost  landedcost.Service
	Procurement procurement.Service
	Tasks       settlement.TaskRepository
	Runner      settlement.FollowUpRunner
	Settlement  settlement.Service
	Outbox      *outbox.Repository
	DeadLetters *outbox.DeadLetterRepository
}

// NewServices wires every domain service over one database client.
func NewServices(cfg *config.Config, logg *logger.Logger, client *db.Client, recorder *metrics.SettlementMetrics) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if client == nil {
		return nil, fmt.Errorf("database client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if recorder == nil {
		recorder = metrics.NewSettlementMetrics(nil)
	}
	defaultLocation, err := cfg.Settlement.DefaultLocation()
	if err != nil {
		return nil, err
	}

	gdb := client.DB()
	s := &Services{
		Catalog:     catalog.NewRepository(gdb),
		Tasks:       settlement.NewTaskRepository(gdb),
		Outbox:      outbox.NewRepository(gdb),
		DeadLetters: outbox.NewDeadLetterRepository(gdb),
	}
	emitter := outbox.NewEmitter(s.Outbox, logg)

	if s.Stock, err = stock.NewService(stock.ServiceParams{
		Pool:           stock.NewGormPool(gdb),
		Catalog:        s.Catalog,
		Logger:         logg,
		Metrics:        recorder,
		CommitAttempts: cfg.Settlement.StockCommitAttempts,
	}); err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}
	if s.Orders, err = orders.NewService(orders.NewRepository(gdb), client, emitter, logg); err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	ledgerRepo := ledger.NewRepository(gdb)
	rates := ledger.NewTaxConfigProvider(ledgerRepo, cfg.Settlement.ReclaimPercent())
	if s.Ledger, err = ledger.NewService(ledgerRepo, rates); err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	if s.LandedCost, err = landedcost.NewService(landedcost.NewRepository(gdb), s.Catalog); err != nil {
		return nil, fmt.Errorf("landed cost service: %w", err)
	}
	if s.Procurement, err = procurement.NewService(procurement.ServiceParams{
		Repo:            procurement.NewRepository(gdb),
		Tx:              client,
		Stock:           s.Stock,
		Catalog:         s.Catalog,
		Outbox:          emitter,
		Logger:          logg,
		DefaultLocation: defaultLocation,
	}); err != nil {
		return nil, fmt.Errorf("procurement service: %w", err)
	}

	if s.Runner, err = settlement.NewFollowUpRunner(settlement.RunnerParams{
		Tasks:       s.Tasks,
		Tx:          client,
		Orders:      s.Orders,
		Ledger:      s.Ledger,
		Rates:       rates,
		Catalog:     s.Catalog,
		Procurement: s.Procurement,
		Outbox:      emitter,
		Metrics:     recorder,
		Logger:      logg,
		MaxAttempts: cfg.Settlement.FollowUpMaxAttempts,
		BaseBackoff: cfg.Settlement.FollowUpBaseBackoff,
	}); err != nil {
		return nil, fmt.Errorf("follow-up runner: %w", err)
	}
	if s.Settlement, err = settlement.NewService(settlement.ServiceParams{
		Tx:                  client,
		Stock:               s.Stock,
		Orders:              s.Orders,
		Tasks:               s.Tasks,
		Outbox:              emitter,
		Runner:              s.Runner,
		Metrics:             recorder,
		Logger:              logg,
		FollowUpConcurrency: cfg.Settlement.FollowUpConcurrency,
		Currency:            cfg.Settlement.Currency,
	}); err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}
	return s, nil
}
