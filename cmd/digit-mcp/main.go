package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ironsheep/digit-tools-mcp/internal/config"
	"github.com/ironsheep/digit-tools-mcp/internal/recognizer"
	"github.com/ironsheep/digit-tools-mcp/internal/server"
	"github.com/ironsheep/digit-tools-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("digit-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("digit-tools-mcp - MCP server for handwritten digit recognition")
			fmt.Println()
			fmt.Println("Usage: digit-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  DIGIT_MODEL_PATH=digits_model.db   Model file to load")
			fmt.Println("  DIGIT_INDEX=brute|kdtree           Nearest-neighbor search")
			fmt.Println("  DIGIT_K=0                          Neighbors per query (0 = model default)")
			fmt.Println("  DIGIT_TRAIN_IMAGES, DIGIT_TRAIN_LABELS")
			fmt.Println("                                     IDX archives to train from when the model is missing")
			fmt.Println("  DIGIT_DEFAULT_K=5                  Neighbor count recorded in trained models")
			fmt.Println("  DIGIT_LOG_LEVEL=debug              Enable debug logging")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if cfg.Debug {
		log.Printf("Digit MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	handle := recognizer.NewHandle(cfg.Index)
	src := recognizer.Source{Images: cfg.TrainImages, Labels: cfg.TrainLabels}
	trained, err := handle.LoadOrTrain(cfg.ModelPath, src, cfg.DefaultK)
	switch {
	case errors.Is(err, store.ErrModelNotFound):
		// digit_train can still provide a model later.
		log.Printf("No model at %s; recognition is unavailable until digit_train runs", cfg.ModelPath)
	case err != nil:
		log.Fatalf("Failed to load model: %v", err)
	case trained:
		log.Printf("Trained %d samples and saved the model to %s", handle.Info().Samples, cfg.ModelPath)
	case cfg.Debug:
		log.Printf("Loaded %d samples from %s, %s index", handle.Info().Samples, cfg.ModelPath, handle.Kind())
	}

	srv := server.New(handle, server.Options{
		ModelPath: cfg.ModelPath,
		K:         cfg.K,
		DefaultK:  cfg.DefaultK,
		Version:   Version,
		Debug:     cfg.Debug,
	})
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
