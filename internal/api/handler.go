package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"

	"stockledger/m/domain"
	"stockledger/m/internal/clock"
	"stockledger/m/internal/logging"
)

// StockService is the product side of the API.
type StockService interface {
	Lookup(ctx context.Context, code string) (domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	Create(ctx context.Context, input domain.NewProduct) (domain.Product, error)
	Update(ctx context.Context, code string, update domain.ProductUpdate) (domain.Product, error)
	Remove(ctx context.Context, code string) (domain.Product, error)
}

// LedgerService records sales and serves ledger reports.
type LedgerService interface {
	RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter, limit int) ([]domain.Sale, error)
	MonthlyTotals(ctx context.Context, limit int) ([]domain.MonthlyTotal, error)
	MonthlyProductBreakdown(ctx context.Context, month domain.Month) ([]domain.ProductBreakdown, error)
	ExportWindow(ctx context.Context, month *domain.Month) (domain.Export, error)
	Audit(ctx context.Context) (domain.AuditReport, error)
	Location() *time.Location
}

// Options configures the router.
type Options struct {
	Logger         *slog.Logger
	Clock          clock.Clock
	RequestTimeout time.Duration
	Production     bool
	// AllowedOrigins enables CORS for browser clients; empty disables it.
	AllowedOrigins []string
	// LoginLimit is the number of login attempts allowed per IP per minute.
	LoginLimit int
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	stock    StockService
	ledger   LedgerService
	auth     *Authenticator
	logger   *slog.Logger
	validate *validator.Validate
	opts     Options
}

// New constructs a Handler.
func New(stock StockService, ledger LedgerService, auth *Authenticator, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.LoginLimit <= 0 {
		opts.LoginLimit = 10
	}
	return &Handler{
		stock:    stock,
		ledger:   ledger,
		auth:     auth,
		logger:   opts.Logger,
		validate: validator.New(),
		opts:     opts,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
		SSLRedirect:        h.opts.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !h.opts.Production,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(secureMiddleware.Handler)
	if len(h.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.Timeout(h.opts.RequestTimeout))

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.With(httprate.LimitByIP(h.opts.LoginLimit, time.Minute)).Post("/login", h.login)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{code}", h.getProduct)
			r.Patch("/{code}", h.updateProduct)
			r.Delete("/{code}", h.deleteProduct)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/", h.createSale)
			r.Get("/", h.salesReport)
			r.Get("/export", h.exportSales)
			r.Get("/audit", h.audit)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
