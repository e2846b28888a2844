package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gowa-sessions/config"
	"gowa-sessions/database"
	"gowa-sessions/internal/handler"
	"gowa-sessions/internal/helper"
	customMiddleware "gowa-sessions/internal/middleware"
	"gowa-sessions/internal/model"
	"gowa-sessions/internal/service"
	"gowa-sessions/internal/wa/meow"
	"gowa-sessions/internal/ws"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

func main() {

	// Load .env (abaikan error kalau file tidak ada, misal di production)
	_ = godotenv.Load()

	cfg := config.Load()

	//database whatsmeow (device store)
	if cfg.WhatsmeowDatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	container := database.InitWhatsmeow(cfg.WhatsmeowDatabaseURL)

	//database custom (client_sessions)
	if cfg.AppDatabaseURL == "" {
		log.Fatal("APP_DATABASE_URL is not set")
	}
	appDB := database.InitAppDB(cfg.AppDatabaseURL)

	if cfg.JWTSecret == "" {
		log.Println("JWT_SECRET is not set")
	}

	// **************************
	// main proses.
	//***************************

	runCreateSchema := false
	if len(os.Args) > 1 && os.Args[1] == "--createschema" {
		runCreateSchema = true
	}
	if runCreateSchema { // buat/ensure schema dulu
		helper.InitCustomSchema(appDB)
	}

	// Inisialisasi WebSocket Hub
	hub := ws.NewHub()
	go hub.Run()

	// Lifecycle manager: satu instance, di-inject ke handler.
	store := &model.SessionStore{DB: appDB}
	dialer := &meow.Dialer{Container: container, DeviceOS: cfg.DeviceOS}
	manager := service.NewManager(dialer, store, hub, cfg.ProtocolVersion)

	// Reconcile record persisten sebelum terima request lifecycle.
	if err := manager.RestoreOnStartup(context.Background()); err != nil {
		log.Fatal("Failed to reconcile persisted sessions:", err)
	}

	manager.StartHealthChecks(cfg.HealthCheckMinutes)

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.PUT,
			echo.PATCH,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestedWith,
			echo.HeaderAuthorization,
		},
		AllowCredentials: true,
	}))
	e.OPTIONS("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimitPerSecond),
				Burst:     cfg.RateLimitBurst,
				ExpiresIn: time.Duration(cfg.RateWindowMinutes) * time.Minute,
			},
		),
	}))

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		message := "Internal Server Error"

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
		// Custom response format
		response := map[string]interface{}{
			"success": false,
			"error":   message,
		}
		// Custom message untuk error tertentu
		switch code {
		case http.StatusUnauthorized:
			response["message"] = "Authentication required. Please login first."
		case http.StatusMethodNotAllowed:
			response["message"] = "Method not allowed for this endpoint"
		case http.StatusNotFound:
			response["message"] = "Endpoint not found"
		}

		c.JSON(code, response)
	}

	// =====================================================
	// PUBLIC ROUTES
	// =====================================================

	// WebSocket and health check
	e.GET("/ws", handler.WebSocketHandler(hub)) //listen socket gorilla
	e.GET("/", func(c echo.Context) error {     // Health check
		return c.JSON(200, map[string]interface{}{
			"success": true,
			"message": "Session manager is running",
			"version": "1.0.0",
		})
	})

	// Daftar group route yang butuh JWT
	api := e.Group("/api", customMiddleware.JWTAuthMiddleware(cfg.JWTSecret))

	// =====================================================
	// CLIENT SESSION ROUTES (JWT required)
	// =====================================================
	api.POST("/clients", handler.CreateClient(store))
	api.GET("/clients", handler.ListClients(manager))
	api.GET("/clients/:clientId", handler.GetClientStatus(manager))
	api.POST("/clients/:clientId/initialize", handler.InitializeClient(manager))
	api.POST("/clients/:clientId/disconnect", handler.DisconnectClient(manager))
	api.POST("/clients/:clientId/logout", handler.LogoutClient(manager))
	api.POST("/clients/:clientId/send", handler.SendMessage(manager))

	//dapatkan event per client, pakai ws
	api.GET("/listen/:clientId", handler.ListenClientEvents(hub))

	// log info untuk cek config
	log.Printf("Server starting on port %s, baseURL=%s", cfg.Port, cfg.BaseURL)

	// bind ke semua interface, bukan hanya 127.0.0.1
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal("shutting down the server:", err)
		}
	}()

	// Tunggu sinyal terminate, lalu drain semua session dulu.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("⏹ Termination signal received, draining sessions...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager.Shutdown(ctx)

	if err := e.Shutdown(ctx); err != nil {
		log.Println("⚠ Server shutdown error:", err)
	}
	log.Println("✓ Shutdown complete")
}
