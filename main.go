package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"sunwatch/internal/api"
	"sunwatch/internal/auth"
	"sunwatch/internal/config"
	"sunwatch/internal/controller"
	"sunwatch/internal/database"
	"sunwatch/internal/location"
	"sunwatch/internal/logger"
	"sunwatch/internal/models"
	"sunwatch/internal/notify"
	"sunwatch/internal/prefs"
	"sunwatch/internal/reminder"
	"sunwatch/internal/solar"
)

type authority interface {
	notify.Authority
	notify.Deliverer
}

func main() {
	hashPassword := flag.String("hash-password", "", "Print a bcrypt hash for ADMIN_PASSWORD_HASH and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatal("Failed to hash password:", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	zlog, logCloser, err := logger.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logCloser.Close()
	defer zlog.Sync()

	// Initialize database
	db, err := database.Initialize(cfg.DatabasePath, cfg.DBEncryptionKey)
	if err != nil {
		zlog.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	tz, err := cfg.Location()
	if err != nil {
		zlog.Warn("Falling back to the coordinate's local day", zap.Error(err))
	}

	backend, closeBackend, err := openPrefsBackend(cfg, db)
	if err != nil {
		zlog.Fatal("Failed to open settings storage", zap.Error(err))
	}
	defer closeBackend()
	store := prefs.NewStore(backend, zlog.Named("prefs"))

	var push *notify.WebPush
	if cfg.WebPushConfigured() {
		push = notify.NewWebPush(db, notify.VapidConfig{
			Subject:    cfg.VapidSubject,
			PublicKey:  cfg.VapidPublicKey,
			PrivateKey: cfg.VapidPrivateKey,
		}, zlog.Named("webpush"))
	}

	var notifier authority
	switch cfg.NotifyBackend {
	case "memory":
		notifier = notify.NewMemory(true, zlog.Named("notify"))
	default:
		channels := []notify.Channel{}
		if push != nil {
			channels = append(channels, push)
		}
		if cfg.EmailConfigured() {
			channels = append(channels, notify.NewEmail(notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPass,
				From:     cfg.SMTPFrom,
				To:       cfg.SMTPTo,
			}))
		}
		notifier = notify.NewOutbox(db, zlog.Named("notify"), channels...)
	}

	scheduler := reminder.NewScheduler(notifier, cfg.NotificationBundle, zlog.Named("reminder"))
	scheduler.RequestAuthorization()

	var (
		source   location.Source
		status   api.LocationStatus
		reporter api.LocationReporter
	)
	switch cfg.LocationMode {
	case "fixed":
		fixed := location.NewFixed(zlog.Named("location"), models.Coordinate{
			Latitude:  cfg.FixedLatitude,
			Longitude: cfg.FixedLongitude,
		})
		source, status = fixed, fixed
	default:
		reported := location.NewReported(zlog.Named("location"), cfg.DesiredAccuracyMeters)
		source, status, reporter = reported, reported, reported
	}

	calc := solar.NewCalculator()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	controllers := make(map[models.EventKind]*controller.Controller)
	for _, kind := range models.Kinds() {
		ctrl := controller.New(controller.Options{
			Kind:       kind,
			Calculator: calc,
			Scheduler:  scheduler,
			Settings:   store,
			Source:     source,
			Location:   tz,
			Logger:     zlog.Named("controller"),
		})
		// Subscribe before the source starts; its streams do not replay.
		ctrl.Connect()
		controllers[kind] = ctrl

		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.Run(ctx)
		}()
	}
	source.Start()

	// Run background workers only if enabled
	if cfg.EnableWorkers {
		zlog.Info("Starting reminder delivery worker", zap.Duration("interval", cfg.DispatchInterval))
		wg.Add(1)
		go func() {
			defer wg.Done()
			deliverReminders(ctx, notifier, cfg.DispatchInterval, zlog.Named("worker"))
		}()
	} else {
		zlog.Info("Background workers disabled (set ENABLE_WORKERS=true to enable)")
	}

	var authManager *auth.Manager
	if cfg.AuthEnabled() {
		authManager = auth.NewManager(cfg.JWTSecret, cfg.AdminUsername, cfg.AdminPasswordHash, cfg.AccessTokenMinutes)
	} else {
		zlog.Warn("Authentication disabled (set ADMIN_PASSWORD_HASH and JWT_SECRET to enable)")
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: !cfg.IsDevelopment(),
	})

	app.Use(fiberlogger.New())

	origins := cfg.Origins()
	zlog.Info("CORS configured", zap.String("allowed_origins", origins))
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api.SetupRoutes(app, &api.Deps{
		Controllers: controllers,
		Calculator:  calc,
		Timezone:    tz,
		Location:    status,
		Reporter:    reporter,
		Reminders:   scheduler,
		Push:        push,
		Auth:        authManager,
		Bundle:      cfg.NotificationBundle,
		Log:         zlog.Named("api"),
	})

	go func() {
		<-ctx.Done()
		zlog.Info("Shutting down")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			zlog.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("Server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Error("Server stopped", zap.Error(err))
	}
	stop()
	wg.Wait()
}

func openPrefsBackend(cfg *config.Config, db *sql.DB) (prefs.Backend, func(), error) {
	switch cfg.PrefsBackend {
	case "bolt":
		b, err := prefs.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	case "memory":
		return prefs.NewMemory(), func() {}, nil
	default:
		return prefs.NewSQLite(db), func() {}, nil
	}
}

// deliverReminders hands due reminders to their channels once at startup and
// then on every tick until ctx is done.
func deliverReminders(ctx context.Context, d notify.Deliverer, interval time.Duration, log *zap.Logger) {
	deliver := func() {
		n, err := d.DeliverDue(ctx, time.Now())
		if err != nil && ctx.Err() == nil {
			log.Error("Reminder delivery error", zap.Error(err))
		}
		if n > 0 {
			log.Info("Delivered reminders", zap.Int("count", n))
		}
	}

	deliver()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deliver()
		}
	}
}
