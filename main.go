package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"cultivation-core/config"
	"cultivation-core/content"
	"cultivation-core/handlers"
	"cultivation-core/middleware"
	"cultivation-core/services"
	"cultivation-core/store"
	"cultivation-core/telemetry"
	"cultivation-core/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "cultivation-core", cfg.Otel)
	if err != nil {
		log.Fatal("failed to set up tracing: ", err)
	}

	catalog, err := content.Load(cfg.ContentPath)
	if err != nil {
		log.Fatal("failed to load game content: ", err)
	}

	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	core := services.NewCore(store.New(db), catalog, cfg.Bank, nil, nil)

	var archiver services.Archiver
	if cfg.Archive.Enabled() {
		r2, err := utils.NewR2Archiver(ctx, cfg.Archive)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		archiver = r2
	} else {
		log.Println("⚠️  R2 credentials not set, ledger archiving disabled")
	}

	scheduler, err := core.Ledger.StartScheduler(ctx, cfg.ShopRestockInterval, archiver)
	if err != nil {
		log.Fatal("failed to start scheduler: ", err)
	}

	app := fiber.New(fiber.Config{
		AppName:   "cultivation-core",
		BodyLimit: 64 * 1024,
	})

	// 🔐 Only gateway requests are allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	allowedOrigins := strings.Join(origins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, core)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", cfg.ListenAddr)
	log.Printf("✅ Shop restock every %s", cfg.ShopRestockInterval)
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
