package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haseab/retrace-sub007/internal/api"
	"github.com/haseab/retrace-sub007/internal/checkpoint"
	"github.com/haseab/retrace-sub007/internal/config"
	"github.com/haseab/retrace-sub007/internal/coordinator"
	"github.com/haseab/retrace-sub007/internal/database"
	"github.com/haseab/retrace-sub007/internal/importer"
	"github.com/haseab/retrace-sub007/internal/models"
	"github.com/haseab/retrace-sub007/internal/textextract"
	"github.com/haseab/retrace-sub007/internal/video"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "retrace",
		Short: "Import screen-recording archives into a searchable frame store",
	}
	rootCmd.AddCommand(scanCmd(), importCmd(), statusCmd(), serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type pipeline struct {
	cfg   *config.Config
	db    *database.DB
	coord *coordinator.Coordinator
}

func (p *pipeline) close() {
	if p.db != nil {
		p.db.Close()
	}
}

func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	db, err := database.NewDB(database.Config{
		Type:       cfg.DB.Type,
		Host:       cfg.DB.Host,
		Port:       cfg.DB.Port,
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Name:       cfg.DB.Name,
		SQLitePath: cfg.DB.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	checkpoints, err := checkpoint.NewStore(cfg.CheckpointDir())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize checkpoint store: %w", err)
	}

	extractor, err := video.NewExtractor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize frame extractor: %w", err)
	}

	var text textextract.Extractor = textextract.Noop{}
	if cfg.OCREndpoint != "" {
		text = textextract.NewHTTPClient(cfg.OCREndpoint, cfg.OCRAPIKey)
	}

	rewind := importer.NewRewindImporter(importer.Config{
		Root:                   cfg.RewindRoot,
		CaptureIntervalSeconds: cfg.CaptureIntervalSeconds,
		BatchSize:              cfg.BatchSize,
		VideoDelay:             cfg.VideoDelay,
	}, extractor, database.NewFrameRepo(db), text, checkpoints)

	coord := coordinator.New()
	coord.Register(rewind)

	return &pipeline{cfg: cfg, db: db, coord: coord}, nil
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [source]",
		Short: "Report archive statistics without importing anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.close()

			source := importer.SourceRewind
			if len(args) == 1 {
				source = args[0]
			}

			result, err := p.coord.Scan(cmd.Context(), source)
			if err != nil {
				return err
			}

			fmt.Printf("Source:            %s\n", result.Source)
			fmt.Printf("Videos:            %d\n", result.VideoCount)
			fmt.Printf("Total size:        %.1f MB\n", float64(result.TotalBytes)/(1024*1024))
			fmt.Printf("Estimated frames:  %d\n", result.EstimatedFrames)
			fmt.Printf("Already processed: %d\n", result.AlreadyProcessed)
			if !result.EarliestVideo.IsZero() {
				fmt.Printf("Covers:            %s to %s\n",
					result.EarliestVideo.Format(time.RFC3339),
					result.LatestVideo.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [source]",
		Short: "Run an import to completion, printing progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.close()

			source := importer.SourceRewind
			if len(args) == 1 {
				source = args[0]
			}

			// Ctrl-C requests a graceful pause; the current video finishes
			// and the checkpoint stays resumable.
			ctx := cmd.Context()
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				select {
				case <-sigs:
					fmt.Println("\nInterrupt received, pausing at next video boundary...")
					_ = p.coord.PauseImport(source)
				case <-ctx.Done():
				}
			}()

			return p.coord.StartImport(ctx, source, &consoleSink{})
		},
	}
}

func statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [source]",
		Short: "Show the persisted import state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.close()

			source := importer.SourceRewind
			if len(args) == 1 {
				source = args[0]
			}

			state, err := p.coord.GetState(source)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(state)
			}
			fmt.Printf("Source:             %s\n", state.Source)
			fmt.Printf("State:              %s\n", state.ProgressState)
			fmt.Printf("Videos processed:   %d\n", len(state.ProcessedVideoPaths))
			fmt.Printf("Frames imported:    %d\n", state.TotalFramesImported)
			fmt.Printf("Frames deduplicated: %d\n", state.TotalFramesDeduplicated)
			fmt.Printf("Last updated:       %s\n", state.LastUpdatedAt.Format(time.RFC3339))
			if state.ErrorMessage != "" {
				fmt.Printf("Error:              %s\n", state.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw state as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.close()

			if p.cfg.DB.Type == "postgres" {
				if err := p.db.RunMigrations(p.cfg.DB.Migrations); err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}
			}

			router := api.NewRouter(api.NewApp(p.coord))
			log.Printf("Server starting on %s", p.cfg.Address)
			return http.ListenAndServe(p.cfg.Address, router)
		},
	}
}

// consoleSink prints import events as human-readable progress lines.
type consoleSink struct{}

func (consoleSink) VideoStarted(path string, index, total int) {
	fmt.Printf("[%d/%d] %s\n", index, total, path)
}

func (consoleSink) VideoFinished(path string, framesImported, framesDeduplicated int64) {
	fmt.Printf("        %d frames imported, %d duplicates skipped\n", framesImported, framesDeduplicated)
}

func (consoleSink) VideoFailed(path string, err error) {
	fmt.Printf("        skipped: %v\n", err)
}

func (consoleSink) ProgressUpdated(s models.ProgressSnapshot) {
	if s.BytesTotal == 0 {
		return
	}
	pct := float64(s.BytesProcessed) / float64(s.BytesTotal) * 100
	line := fmt.Sprintf("%.1f%% (%d/%d videos, %d frames)", pct, s.VideosProcessed, s.VideosTotal, s.FramesImported)
	if s.ETASeconds > 0 {
		line += fmt.Sprintf(", ETA %s", (time.Duration(s.ETASeconds) * time.Second).Round(time.Second))
	}
	fmt.Println(line)
}

func (consoleSink) ImportCompleted(summary models.ImportSummary) {
	fmt.Printf("Done: %d videos (%d failed), %d frames imported, %d deduplicated in %s\n",
		summary.VideosProcessed, summary.VideosFailed,
		summary.FramesImported, summary.FramesDeduplicated,
		summary.Duration.Round(time.Second))
}

func (consoleSink) ImportFailed(err error) {
	fmt.Printf("Import failed: %v\n", err)
}
