package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joaquinvilla/merkado-backend/api/controllers"
	commissioncontrollers "github.com/joaquinvilla/merkado-backend/api/controllers/commission"
	invoicecontrollers "github.com/joaquinvilla/merkado-backend/api/controllers/invoices"
	payoutcontrollers "github.com/joaquinvilla/merkado-backend/api/controllers/payouts"
	rulecontrollers "github.com/joaquinvilla/merkado-backend/api/controllers/rules"
	settlementcontrollers "github.com/joaquinvilla/merkado-backend/api/controllers/settlements"
	webhookcontrollers "github.com/joaquinvilla/merkado-backend/api/controllers/webhooks"
	"github.com/joaquinvilla/merkado-backend/api/middleware"
	"github.com/joaquinvilla/merkado-backend/internal/commission"
	"github.com/joaquinvilla/merkado-backend/internal/invoices"
	"github.com/joaquinvilla/merkado-backend/internal/payouts"
	"github.com/joaquinvilla/merkado-backend/internal/rules"
	"github.com/joaquinvilla/merkado-backend/internal/settlements"
	"github.com/joaquinvilla/merkado-backend/pkg/config"
	"github.com/joaquinvilla/merkado-backend/pkg/db"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/pubsub"
	"github.com/joaquinvilla/merkado-backend/pkg/redis"
	"github.com/joaquinvilla/merkado-backend/pkg/square"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	pubsubClient *pubsub.Client,
	squareClient *square.Client,
	rulesService rules.Service,
	commissionService commission.Service,
	settlementsService settlements.Service,
	payoutsService payouts.Service,
	invoicesService invoices.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient, pubsubClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(payoutsService, squareClient, logg))
	})

	r.Route("/api/v1/commission-rules", func(r chi.Router) {
		r.Post("/", rulecontrollers.Create(rulesService, logg))
		r.Get("/", rulecontrollers.List(rulesService, logg))
		r.Get("/{ruleId}", rulecontrollers.Get(rulesService, logg))
		r.Put("/{ruleId}", rulecontrollers.Update(rulesService, logg))
		r.Delete("/{ruleId}", rulecontrollers.Deactivate(rulesService, logg))
	})

	r.Route("/api/v1/commission-records", func(r chi.Router) {
		r.Get("/", commissioncontrollers.List(commissionService, logg))
		r.Post("/preview", commissioncontrollers.Preview(commissionService, logg))
		r.Get("/{recordId}", commissioncontrollers.Get(commissionService, logg))
		r.Put("/{recordId}", commissioncontrollers.Correct(commissionService, logg))
	})

	r.Route("/api/v1/settlements", func(r chi.Router) {
		r.Get("/", settlementcontrollers.List(settlementsService, logg))
		r.Post("/generate", settlementcontrollers.Generate(settlementsService, logg))
		r.Post("/generate-all", settlementcontrollers.GenerateAll(settlementsService, logg))
		r.Route("/{settlementId}", func(r chi.Router) {
			r.Get("/", settlementcontrollers.Get(settlementsService, logg))
			r.Post("/finalize", settlementcontrollers.Finalize(settlementsService, logg))
			r.Post("/cancel", settlementcontrollers.Cancel(settlementsService, logg))
			r.Post("/invoice", invoicecontrollers.Issue(invoicesService, logg))
			r.Get("/invoice", invoicecontrollers.GetBySettlement(invoicesService, logg))
		})
	})

	r.Route("/api/v1/payouts", func(r chi.Router) {
		r.Get("/", payoutcontrollers.List(payoutsService, logg))
		r.Get("/exhausted", payoutcontrollers.Exhausted(payoutsService, logg))
		r.Route("/{payoutId}", func(r chi.Router) {
			r.Get("/", payoutcontrollers.Get(payoutsService, logg))
			r.Post("/retry", payoutcontrollers.Retry(payoutsService, logg))
		})
	})

	r.Route("/api/v1/invoices", func(r chi.Router) {
		r.Get("/", invoicecontrollers.List(invoicesService, logg))
		r.Get("/{invoiceId}", invoicecontrollers.Get(invoicesService, logg))
	})

	return r
}
