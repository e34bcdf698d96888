package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"funnelpulse/api/database"
	"funnelpulse/api/geoip"
	"funnelpulse/api/handlers"
	"funnelpulse/api/middleware"
	"funnelpulse/api/store"
	"funnelpulse/api/tracker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Postgres: session rows + dashboard admins ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	// --- ClickHouse: append-only funnel events ---
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse database: %v", err)
	}
	defer chClient.Close()

	// --- Redis (optional): shared geolocation cache ---
	var geoCache geoip.Cache
	redisClient, err := database.NewRedisClient()
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		geoCache = geoip.NewRedisCache(redisClient)
	}

	// --- Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	sessionStore := store.NewSessionStore(dbClient.DB)
	analyticsStore := store.NewAnalyticsStore(chClient)

	// --- Tracking core ---
	resolver := geoip.NewResolver(geoCache)
	manager := tracker.NewManager(analyticsStore, sessionStore, resolver)
	defer manager.Close()

	// --- Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore)
	trackHandlers := handlers.NewTrackHandlers(manager)
	statsHandlers := handlers.NewStatsHandlers(analyticsStore, sessionStore)

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		// Public tracking endpoints the funnel pages call.
		track := api.Group("/track")
		{
			track.POST("/enter", trackHandlers.Enter)
			track.POST("/video-play", trackHandlers.VideoPlay)
			track.POST("/video-progress", trackHandlers.VideoProgress)
			track.POST("/offer-click", trackHandlers.OfferClick)
			track.POST("/visibility", trackHandlers.Visibility)
			track.POST("/exit", trackHandlers.Exit)
		}

		// Dashboard aggregations require a valid JWT.
		protected := api.Group("/")
		protected.Use(middleware.AuthRequired())
		{
			stats := protected.Group("/stats")
			{
				stats.GET("/funnel", statsHandlers.GetFunnelSummary)
				stats.GET("/live", statsHandlers.GetLiveUsers)
				stats.GET("/live-breakdown", statsHandlers.GetLiveBreakdown)
				stats.GET("/event-counts", statsHandlers.GetEventCountsOverTime)
				stats.GET("/top-countries", statsHandlers.GetTopCountries)
				stats.GET("/top-cities", statsHandlers.GetTopCities)
			}
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("FunnelPulse API server starting on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
