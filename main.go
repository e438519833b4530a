package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"detective-arena/engine"
	"detective-arena/handlers"
	"detective-arena/llm"
	"detective-arena/middleware"
	"detective-arena/models"
	"detective-arena/services"
	"detective-arena/utils"
	"detective-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("⚠️  %s=%q is not a positive integer, using default %d", key, v, fallback)
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // chat payloads are tiny
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed. External agents authenticate
	// with their own persona JWT instead, and the health probe stays open.
	gatewayAuth := middleware.GatewayAuthMiddleware()
	app.Use(func(c *fiber.Ctx) error {
		p := c.Path()
		if p == "/healthz" || strings.HasPrefix(p, "/agent/") {
			return c.Next()
		}
		return gatewayAuth(c)
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Name, X-Agent-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.ArenaUser{},
		&models.PersonaRecord{},
		&models.CycleRecord{},
		&models.CycleLeaderboardRow{},
		&models.CyclePersonaStat{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	eng := engine.New(engine.Config{
		MinQuorum:    envInt("ARENA_MIN_PLAYERS", 4),
		RegCountdown: time.Duration(envInt("ARENA_REG_SECONDS", 60)) * time.Second,
		TotalRounds:  envInt("ARENA_ROUNDS", 3),
		RoundTime:    time.Duration(envInt("ARENA_ROUND_SECONDS", 90)) * time.Second,
		LockGrace:    time.Duration(envInt("ARENA_LOCK_GRACE_SECONDS", 10)) * time.Second,
	})

	// --- CONFIGURE sync service details for arena users ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("ARENA_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("ARENA_SERVICE_TOKEN environment variable not set")
	}

	identity := services.NewIdentityGateway(syncServiceURL, serviceToken)
	arenaService := services.NewArenaService(db, eng, identity)
	ledger := services.NewLeaderboardService(db)

	if err := arenaService.LoadPersonas(); err != nil {
		log.Fatal("failed to load persona catalog:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := workers.NewIdentitySyncWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)
	syncWorker.Start(ctx)

	personaWorker := workers.NewPersonaWorker(eng, llm.NewPersonaBridge())
	personaWorker.Start(ctx)

	scheduler := services.NewArenaScheduler(eng, ledger)
	scheduler.Start()

	handlers.SetupArenaRoutes(app, arenaService)

	port := os.Getenv("ARENA_PORT")
	if port == "" {
		port = "5300"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Identity Sync Worker running")
	log.Println("✅ Persona Worker running (1s poll)")
	log.Println("✅ Engine scheduler running (1s tick)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
