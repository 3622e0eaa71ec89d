package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"filemanager/config"
	"filemanager/jobs"
	"filemanager/routes"
	"filemanager/services"
	"filemanager/storage"
	"filemanager/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "filemanager",
	Short:        "Company scoped file manager service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env must be loaded before the config reads the environment
		loadEnvFile()

		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		utils.InitLogger(cfg.LogLevel)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, toml or json)")
	rootCmd.AddCommand(serveCmd, provisionCmd, tokenCmd, auditCmd)
}

func serve() error {
	config.LogConfig(cfg)

	mongoClient, err := connectMongo(cfg)
	if err != nil {
		return err
	}
	defer disconnectMongo(mongoClient)
	db := mongoClient.Database(cfg.Mongo.Database)

	ctx, cancel := config.CreateContext(30 * time.Second)
	backend, err := storage.New(ctx, cfg.Storage.Type, cfg.Storage.Options())
	cancel()
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage.Type, err)
	}
	utils.LogInfof("storage backend %s ready at %s", backend.Name(), backend.Resolve(""))

	audit, closeAudit, err := openAuditSink(cfg, db)
	if err != nil {
		return err
	}
	defer closeAudit()

	container, err := routes.NewServiceContainer(cfg, backend, services.NewAuthorizationService(db), audit)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if sweepable, ok := backend.(jobs.StaleUploadSweeper); ok && cfg.Jobs.UploadSweepSchedule != "" {
		sweeper := jobs.NewUploadSweeper(sweepable, cfg.Jobs.UploadSweepSchedule, cfg.Jobs.UploadStaleAfter)
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.SetupRouter(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelSignals()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting file manager server on port %s", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-stop.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := config.CreateContext(30 * time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func connectMongo(cfg *config.Config) (*mongo.Client, error) {
	ctx, cancel := config.CreateContext(10 * time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		disconnectMongo(client)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Println("Connected to MongoDB successfully")
	return client, nil
}

func disconnectMongo(client *mongo.Client) {
	ctx, cancel := config.CreateContext(5 * time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Printf("Failed to disconnect MongoDB: %v", err)
	}
}

// openAuditSink returns the configured sink and a close func.
func openAuditSink(cfg *config.Config, db *mongo.Database) (services.AuditSink, func(), error) {
	if cfg.Audit.Type == "badger" {
		sink, err := services.OpenBadgerAuditSink(cfg.Audit.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {
			if err := sink.Close(); err != nil {
				utils.LogError("failed to close audit store", err)
			}
		}, nil
	}
	return services.NewMongoAuditSink(db), func() {}, nil
}

// loadEnvFile handles loading .env file from multiple possible locations
func loadEnvFile() {
	pwd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not get working directory: %v", err)
		return
	}

	envPaths := []string{
		".env",
		"../.env",
		filepath.Join(pwd, ".env"),
		filepath.Join(filepath.Dir(pwd), ".env"),
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		absPath, _ := filepath.Abs(envPath)
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Failed to load .env from %s: %v", absPath, err)
			continue
		}
		utils.LogDebug("loaded environment variables from " + absPath)
		return
	}

	utils.LogDebug("no .env file found, using system environment variables")
}
