package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/auth"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/handlers"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/ledger"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/line"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/reminder"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/store"
)

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func main() {
	// Load .env if it exists
	// Try root and parent directories for flexibility
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	logger := newLogger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	var st store.Store
	if os.Getenv("STORE") == "memory" {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		st = store.NewMemory()
	} else {
		st = store.NewGorm(database.InitDB())
	}
	_ = auth.EnsureAdminExists(st)

	var msgr line.Messenger = line.Disabled{}
	if token := os.Getenv("LINE_CHANNEL_TOKEN"); token != "" {
		msgr = line.NewClient(token)
	} else {
		logger.Warn().Msg("LINE_CHANNEL_TOKEN not set, reminder delivery disabled")
	}

	led := ledger.New(st, logger)
	rem := reminder.New(st, msgr, os.Getenv("REMINDER_TEMPLATE"), logger)
	h := &handlers.Handler{Ledger: led, Reminders: rem, Store: st, Log: logger}

	// Periodic dispatch trigger. The dispatch window check inside the
	// scheduler stays authoritative, so a mis-set cron spec cannot
	// cause off-window sends.
	cronSpec := os.Getenv("REMINDER_CRON")
	if cronSpec == "" {
		cronSpec = "@every 5m"
	}
	cr := cron.New()
	if _, err := cr.AddFunc(cronSpec, func() {
		sent, failed, err := rem.RunDue(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("reminder dispatch cycle failed")
			return
		}
		if sent+failed > 0 {
			logger.Info().Int("sent", sent).Int("failed", failed).Msg("reminder dispatch cycle")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("spec", cronSpec).Msg("invalid REMINDER_CRON")
	}
	cr.Start()

	r := gin.Default()

	// Routes
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Job Shift Booking API",
			"version": "1.0.0",
		})
	})

	r.POST("/admin/login", h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/cells", h.UpsertCells)
		admin.PUT("/cells/:id", h.UpdateCell)
		admin.DELETE("/cells", h.DeleteCells)
		admin.GET("/reminders", h.ListReminders)
		admin.POST("/reminders/manual", h.ManualSend)
		admin.POST("/reminders/dispatch", h.TriggerDispatch)
		admin.POST("/reminders/resend/:id", h.ResendReminder)
	}

	// Applicant Endpoints
	api := r.Group("/api")
	{
		api.POST("/bookings", h.SubmitBooking)
		api.PUT("/bookings/:reference", h.AmendBooking)
		api.GET("/bookings", h.LookupBooking)
		api.GET("/capacity/:cohort", h.GetCapacity)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	logger.Info().Str("port", port).Msg("server starting")
	if err := r.Run(":" + port); err != nil {
		logger.Fatal().Err(err).Msg("could not run server")
	}
}
