package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/ironsheep/digit-tools-mcp/internal/config"
	"github.com/ironsheep/digit-tools-mcp/internal/httpapi"
	"github.com/ironsheep/digit-tools-mcp/internal/recognizer"
	"github.com/ironsheep/digit-tools-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("digit-http %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("digit-http - HTTP service for handwritten digit recognition")
			fmt.Println()
			fmt.Println("Usage: digit-http [options]")
			fmt.Println()
			fmt.Println("Endpoints:")
			fmt.Println("  GET  /health          Service and model status")
			fmt.Println("  POST /predict         784 canonical bytes, row-major, ink high")
			fmt.Println("  POST /predict/image   Multipart upload, field \"image\"")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  DIGIT_HTTP_ADDR=:8080 (or PORT)    Listen address")
			fmt.Println("  DIGIT_MODEL_PATH=digits_model.db   Model file to load")
			fmt.Println("  DIGIT_INDEX=brute|kdtree           Nearest-neighbor search")
			fmt.Println("  DIGIT_K=0                          Neighbors per query (0 = model default)")
			fmt.Println("  DIGIT_TRAIN_IMAGES, DIGIT_TRAIN_LABELS")
			fmt.Println("                                     IDX archives to train from when the model is missing")
			fmt.Println("  DIGIT_LOG_LEVEL=debug              Enable debug logging")
			return
		}
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	handle := recognizer.NewHandle(cfg.Index)
	src := recognizer.Source{Images: cfg.TrainImages, Labels: cfg.TrainLabels}
	log.Printf("Loading model from: %s", cfg.ModelPath)
	trained, err := handle.LoadOrTrain(cfg.ModelPath, src, cfg.DefaultK)
	switch {
	case errors.Is(err, store.ErrModelNotFound):
		log.Printf("No model at %s; /predict answers 503 until one is trained", cfg.ModelPath)
	case err != nil:
		log.Fatalf("Failed to load model: %v", err)
	case trained:
		log.Printf("Trained %d samples and saved the model to %s", handle.Info().Samples, cfg.ModelPath)
	default:
		log.Printf("Model loaded: %d samples, %s index", handle.Info().Samples, handle.Kind())
	}

	handler := httpapi.NewHandler(handle, cfg.K)

	log.Printf("Server starting on %s", cfg.HTTPAddr)
	if cfg.Debug {
		log.Println("Endpoints:")
		log.Println("  GET  /health        - Health check")
		log.Println("  POST /predict       - Canonical 784-byte prediction")
		log.Println("  POST /predict/image - Predict from image upload")
	}

	if err := http.ListenAndServe(cfg.HTTPAddr, handler.Routes()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
