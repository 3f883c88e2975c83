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

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/goodpartydata/voterflow/internal/config"
	"github.com/goodpartydata/voterflow/internal/db"
	"github.com/goodpartydata/voterflow/internal/ingest"
	"github.com/goodpartydata/voterflow/internal/middleware"
	"github.com/goodpartydata/voterflow/internal/repository"
	"github.com/goodpartydata/voterflow/internal/transform"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "voterflow",
		Short: "Incremental voter roll ingestion into Postgres with a dbt refresh",
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")

	root.AddCommand(runCmd(), serveCmd(), statusCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func buildCoordinator(cfg config.Config, conn *db.Connection) *ingest.Coordinator {
	voters := repository.NewVoterRepository(conn)
	audits := repository.NewAuditRepository(conn.Pool)
	schema := ingest.SchemaInitializerFunc(func(context.Context) error {
		return db.EnsureSchema(cfg.Database)
	})
	runner := transform.NewDBTRunner(cfg.DBT.ProjectDir, cfg.DBT.ProfilesDir, cfg.DBT.Selectors)

	return ingest.NewCoordinator(cfg.Source.Path, voters, audits, schema, runner)
}

func runCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one coordinated ingestion run",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			ctx := cmd.Context()

			conn, err := db.NewConnection(ctx, cfg.Database)
			if err != nil {
				log.Fatalf("Failed to connect to database: %v", err)
			}
			defer conn.Close()

			if runID == "" {
				runID = "manual__" + uuid.NewString()
			}

			coordinator := buildCoordinator(cfg, conn)
			result, err := coordinator.Run(ctx, runID)
			printJSON(result)
			if err != nil {
				log.Fatalf("Ingestion run %s failed: %v", runID, err)
			}
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "scheduler run identifier recorded in the audit trail")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the ingestion pipeline over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			ctx := cmd.Context()

			conn, err := db.NewConnection(ctx, cfg.Database)
			if err != nil {
				log.Fatalf("Failed to connect to database: %v", err)
			}
			defer conn.Close()

			coordinator := buildCoordinator(cfg, conn)
			audits := repository.NewAuditRepository(conn.Pool)

			corsHandler := cors.New(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			})

			handler := middleware.LoggingMiddleware(
				corsHandler.Handler(ingest.NewHTTPHandler(coordinator, audits)),
			)

			server := &http.Server{
				Addr:         cfg.HTTPAddr,
				Handler:      handler,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 10 * time.Minute, // a run blocks until the load finishes
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				log.Printf("Starting ingestion server on %s", cfg.HTTPAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			log.Println("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Fatalf("Server forced to shutdown: %v", err)
			}

			log.Println("Server exited")
		},
	}
}

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent ingestion audit records",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			ctx := cmd.Context()

			conn, err := db.NewConnection(ctx, cfg.Database)
			if err != nil {
				log.Fatalf("Failed to connect to database: %v", err)
			}
			defer conn.Close()

			audits := repository.NewAuditRepository(conn.Pool)
			records, err := audits.List(ctx, limit)
			if err != nil {
				log.Fatalf("Failed to list audit records: %v", err)
			}
			printJSON(records)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of audit records to show")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Ensure the raw and audit tables exist",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if err := db.EnsureSchema(cfg.Database); err != nil {
				log.Fatalf("Failed to ensure schema: %v", err)
			}
			log.Println("Raw and audit tables are in place")
		},
	}
}

func printJSON(payload any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		log.Fatalf("Failed to render output: %v", err)
	}
}
