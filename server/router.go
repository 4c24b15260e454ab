package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reclaim/account"
	"reclaim/analytics"
	"reclaim/backoffice"
	"reclaim/blog"
	"reclaim/cache"
	"reclaim/common"
	"reclaim/config"
	"reclaim/curriculum"
	"reclaim/email"
	"reclaim/journal"
	"reclaim/leads"
	"reclaim/metrics"
	"reclaim/payment"
	"reclaim/progress"
	"reclaim/ratelimit"
	"reclaim/settings"
)

// PublicRoutes are reachable without a session.
var PublicRoutes = []string{
	"POST /api/register",
	"POST /api/login",
	"POST /api/logout",
	"GET /api/phases",
	"GET /api/phases/:id",
	"GET /api/phases/:id/exercises",
	"GET /api/phases/:id/assessments",
	"GET /api/exercises/:id",
	"GET /api/assessments/:id",
	"GET /api/blog",
	"GET /api/blog/:slug",
	"POST /api/leads",
	"POST /api/stripe-webhook",
	"GET /api/payment-config",
}

// Options replaces collaborators that default to their production versions.
type Options struct {
	Sessions sessions.Store
	Limiter  ratelimit.Limiter
	Gateway  payment.Gateway
	Mailer   email.Mailer
	Cache    *cache.Store
}

// NewRouter wires every module behind the session gate and returns the
// engine ready to serve.
func NewRouter(db *gorm.DB, cfg *config.Config, opts Options) *gin.Engine {
	store := settings.NewStore(db, cfg)

	if opts.Sessions == nil {
		opts.Sessions = gormsessions.NewStore(db, true, []byte(cfg.Session.Secret))
	}
	opts.Sessions.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Session.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	if opts.Gateway == nil {
		opts.Gateway = payment.NewStripeGateway()
	}
	if opts.Mailer == nil {
		opts.Mailer = email.NewEmailService(store, cfg.Server.Domain)
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewStore(cfg.Cache.Dir, cfg.Cache.MaxAge)
	}

	router := gin.New()
	router.Use(gin.Recovery(), common.RequestLogger(), metrics.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Server.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(sessions.Sessions(cfg.Session.Name, opts.Sessions))

	router.NoRoute(account.Unmatched("/api/"))

	router.GET("/healthz", health(db))
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api", account.Gate(PublicRoutes...))
	requireAdmin := account.RequireAdmin(db)
	admin := api.Group("/admin", requireAdmin)

	tracker := analytics.NewAnalyticsModule(db)
	progressModule := progress.NewProgressModule(db)
	blogModule := blog.NewBlogModule(db, opts.Cache, tracker)
	leadsModule := leads.NewLeadsModule(db, opts.Mailer, opts.Limiter)

	account.NewAccountModule(db, opts.Limiter).RegisterRoutes(api)
	curriculum.NewCurriculumModule(db).RegisterRoutes(api)
	progressModule.RegisterRoutes(api)
	journal.NewJournalModule(db).RegisterRoutes(api)
	leadsModule.RegisterRoutes(api)
	blogModule.RegisterRoutes(api)
	blogModule.RegisterWriteRoutes(api, requireAdmin)
	payment.NewPaymentModule(db, opts.Gateway, store, opts.Mailer).RegisterRoutes(api)

	progressModule.RegisterAdminRoutes(admin)
	leadsModule.RegisterAdminRoutes(admin)
	blogModule.RegisterAdminRoutes(admin)
	tracker.RegisterAdminRoutes(admin)
	backoffice.NewBackofficeModule(db, store).RegisterAdminRoutes(admin)

	return router
}

func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
