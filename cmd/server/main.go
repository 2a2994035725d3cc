package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/avelio/backend/docs"
	"github.com/avelio/backend/internal/config"
	"github.com/avelio/backend/internal/database"
	mW "github.com/avelio/backend/internal/middleware"
	"github.com/avelio/backend/internal/services"
)

// @title Avelio Receipts API
// @version 1.0
// @description Credit-deposit receipt management for travel agencies
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	viper.BindEnv("pdf.renderer_url", "PDF_RENDERER_URL")
	viper.BindEnv("pdf.timeout", "PDF_RENDERER_TIMEOUT")
	viper.BindEnv("remittance.creditor_name", "REMITTANCE_CREDITOR_NAME")
	viper.BindEnv("remittance.creditor_bic", "REMITTANCE_CREDITOR_BIC")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Avelio Receipts API"
	docs.SwaggerInfo.Description = "Credit-deposit receipt management for travel agencies"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	appConfig := config.LoadAppConfig()
	log.Printf("[APP] Business timezone %s, receipt prefix %s",
		appConfig.TimezoneName, appConfig.ReceiptPrefix)

	qrService := services.NewQRService(appConfig.VerifyURLTemplate)
	pdfRenderer := services.NewHTTPPDFRenderer()
	remittanceService := services.NewRemittanceService()

	authService := services.NewAuthService(db, redisClient)
	agencyService := services.NewAgencyService(db)
	receiptService := services.NewReceiptService(db, qrService, appConfig)
	analyticsService := services.NewAnalyticsService(db, appConfig)
	statsService := services.NewStatsService(db, appConfig)
	exportService := services.NewExportService(db, receiptService, pdfRenderer, remittanceService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/verify/{receiptNumber}", receiptService.VerifyReceipt)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)
			r.Post("/auth/change-password", authService.ChangePassword)

			// Agency directory
			r.Get("/agencies", agencyService.ListAgencies)
			r.Post("/agencies", agencyService.UpsertAgency)
			r.Post("/agencies/bulk", agencyService.BulkUpsertAgencies)
			r.Get("/agencies/{id}", agencyService.GetAgency)
			r.Patch("/agencies/{id}", agencyService.UpdateAgency)

			// Receipt ledger
			r.Get("/receipts", receiptService.ListReceipts)
			r.Post("/receipts", receiptService.CreateReceipt)
			r.Get("/receipts/{id}", receiptService.GetReceipt)
			r.Patch("/receipts/{id}/status", receiptService.UpdateReceiptStatus)
			r.Post("/receipts/{id}/void", receiptService.VoidReceipt)

			// Analytics and dashboards
			r.Get("/analytics", analyticsService.GetAnalytics)
			r.Get("/stats/dashboard", statsService.GetDashboardStats)
			r.Get("/stats/today", statsService.GetTodayStats)
			r.Get("/stats/pending", statsService.GetPendingReceipts)

			// Exports
			r.Get("/export/receipts.csv", exportService.ExportReceiptsCSV)
			r.Get("/export/summary.csv", exportService.ExportSummaryCSV)
			r.Get("/export/receipts/{id}/pdf", exportService.ExportReceiptPDF)
			r.Get("/export/receipts/{id}/iso20022", exportService.ExportReceiptRemittance)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
