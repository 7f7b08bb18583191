package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/landedcost"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/procurement"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	middleware.RateLimitStore
	Ping(ctx context.Context) error
}

// DeadLetterReader lists parked outbox rows.
type DeadLetterReader interface {
	Recent(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error)
}

// Dependencies groups everything the router wires into handlers.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       RedisStore
	Settlement  settlement.Service
	Orders      orders.Service
	Ledger      ledger.Service
	LandedCost  landedcost.Service
	Stock       stock.Service
	Procurement procurement.Service
	DeadLetters DeadLetterReader
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.Actor(logg),
	)

	var redisPinger controllers.Pinger
	var idempotencyStore pkgredis.IdempotencyStore
	var rateStore middleware.RateLimitStore
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idempotencyStore = deps.Redis
		rateStore = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": redisPinger,
		}))
	})

	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	settlementPolicy := middleware.NewRateLimitPolicy(
		"settlement",
		cfg.RateLimit.SettlementWindow,
		cfg.RateLimit.SettlementIPLimit,
		cfg.RateLimit.SettlementEmailLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.With(middleware.SettlementRateLimit(settlementPolicy, rateStore, logg)).
			Post("/settlements", controllers.Settle(deps.Settlement, logg))
		r.Get("/orders/{orderId}", controllers.OrderDetail(deps.Orders, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.RequireActorKind(logg, enums.ActorKindAdmin, enums.ActorKindService))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
			r.Post("/{orderId}/transition", controllers.AdminTransitionOrder(deps.Orders, logg))
			r.Get("/{orderId}/financials", controllers.AdminOrderFinancials(deps.Ledger, logg))
		})

		r.Post("/landed-cost/calculate", controllers.AdminCalculateLandedCost(deps.LandedCost, logg))
		r.Get("/products/{productId}/cost-breakdown", controllers.AdminGetCostBreakdown(deps.LandedCost, logg))
		r.Put("/products/{productId}/cost-breakdown", controllers.AdminPutCostBreakdown(deps.LandedCost, logg))
		r.Get("/duty-rates", controllers.AdminListDutyRates(deps.LandedCost, logg))
		r.Put("/duty-rates", controllers.AdminUpsertDutyRate(deps.LandedCost, logg))

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", controllers.AdminStockLevel(deps.Stock, logg))
			r.Get("/history", controllers.AdminStockHistory(deps.Stock, logg))
			r.Post("/provision", controllers.AdminProvisionStock(deps.Stock, logg))
			r.Post("/restock", controllers.AdminRestock(deps.Stock, logg))
			r.Post("/adjust", controllers.AdminAdjustStock(deps.Stock, logg))
			r.Post("/archive", controllers.AdminArchiveStock(deps.Stock, logg))
		})

		r.Route("/procurement", func(r chi.Router) {
			r.Get("/", controllers.AdminListProcurement(deps.Procurement, logg))
			r.Post("/{itemId}/ordered", controllers.AdminMarkProcurementOrdered(deps.Procurement, logg))
			r.Post("/{itemId}/received", controllers.AdminMarkProcurementReceived(deps.Procurement, logg))
			r.Post("/{itemId}/cancel", controllers.AdminCancelProcurement(deps.Procurement, logg))
			r.Put("/{itemId}/priority", controllers.AdminSetProcurementPriority(deps.Procurement, logg))
		})

		if deps.DeadLetters != nil {
			r.Get("/outbox/dead-letters", controllers.AdminListDeadLetters(deps.DeadLetters, logg))
		}
	})

	return r
}
