// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/floodlab/levee/internal/auth"
	"github.com/floodlab/levee/internal/cache"
	"github.com/floodlab/levee/internal/config"
	"github.com/floodlab/levee/internal/database"
	"github.com/floodlab/levee/internal/handlers"
	"github.com/floodlab/levee/internal/middleware"
)

func main() {
	// With key files, session tokens survive a server restart; without them
	// an ephemeral key pair is generated and sessions last as long as the
	// process.
	privPath, pubPath := os.Getenv("SESSION_PRIVATE_KEY_FILE"), os.Getenv("SESSION_PUBLIC_KEY_FILE")
	if privPath != "" && pubPath != "" {
		if err := auth.InitFromPath(privPath, pubPath); err != nil {
			log.Fatalf("failed to load session keys: %v", err)
		}
	} else {
		auth.Init()
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("invalid experiment config: %v", err)
	}

	// Postgres and Redis are both optional. Without them the server still
	// runs full experiments, it just keeps no record of them.
	if os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		defer database.DB.Close()
	} else {
		logger.Warn("PG_HOST not set, running without persistence")
	}
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("Redis unavailable, action export disabled: %v", err)
	}

	srv := handlers.NewServer(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HealthHandler())

	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, srv),
	)))
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
