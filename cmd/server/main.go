package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/haseab/retrace-sub007/internal/api"
	"github.com/haseab/retrace-sub007/internal/checkpoint"
	"github.com/haseab/retrace-sub007/internal/config"
	"github.com/haseab/retrace-sub007/internal/coordinator"
	"github.com/haseab/retrace-sub007/internal/database"
	"github.com/haseab/retrace-sub007/internal/importer"
	"github.com/haseab/retrace-sub007/internal/textextract"
	"github.com/haseab/retrace-sub007/internal/video"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
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
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	if cfg.DB.Type == "postgres" {
		log.Printf("Running database migrations from %s", cfg.DB.Migrations)
		if err := db.RunMigrations(cfg.DB.Migrations); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}
	}

	checkpoints, err := checkpoint.NewStore(cfg.CheckpointDir())
	if err != nil {
		log.Fatal("Failed to initialize checkpoint store:", err)
	}

	extractor, err := video.NewExtractor()
	if err != nil {
		log.Fatal("Failed to initialize frame extractor:", err)
	}

	var text textextract.Extractor = textextract.Noop{}
	if cfg.OCREndpoint != "" {
		text = textextract.NewHTTPClient(cfg.OCREndpoint, cfg.OCRAPIKey)
		log.Printf("Text extraction enabled via %s", cfg.OCREndpoint)
	} else {
		log.Printf("Text extraction not configured. Set RETRACE_OCR_ENDPOINT to enable it")
	}

	frameRepo := database.NewFrameRepo(db)
	rewind := importer.NewRewindImporter(importer.Config{
		Root:                   cfg.RewindRoot,
		CaptureIntervalSeconds: cfg.CaptureIntervalSeconds,
		BatchSize:              cfg.BatchSize,
		VideoDelay:             cfg.VideoDelay,
	}, extractor, frameRepo, text, checkpoints)

	coord := coordinator.New()
	coord.Register(rewind)

	app := api.NewApp(coord)
	router := api.NewRouter(app)

	log.Printf("Server starting on %s", cfg.Address)
	log.Printf("Rewind archive root: %s", cfg.RewindRoot)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Database type: %s", cfg.DB.Type)
	if cfg.DB.Type == "postgres" {
		log.Printf("Database connection: %s@%s:%d/%s", cfg.DB.User, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	} else {
		log.Printf("Database path: %s", cfg.DB.SQLitePath)
	}

	if err := http.ListenAndServe(cfg.Address, router); err != nil {
		log.Fatal(err)
	}
}
