// genaicheck runs a single generation call against the configured provider so
// operators can verify credentials and connectivity before starting the worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"server/internal/domain"
	"server/internal/providers/genai"
	"server/internal/worker"
)

func main() {
	var (
		keyFlag   string
		modelFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key (falls back to GEMINI_API_KEY)")
	flag.StringVar(&modelFlag, "model", "", "model to call (falls back to GEMINI_MODEL)")
	flag.Parse()

	_ = godotenv.Load()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" {
		exitWithError(errors.New("a Gemini API key is required via -key or GEMINI_API_KEY"))
	}

	model := strings.TrimSpace(modelFlag)
	if model == "" {
		model = strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  key,
		BaseURL: os.Getenv("GEMINI_BASE_URL"),
		Model:   model,
	})
	if err != nil {
		exitWithError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	input, _ := json.Marshal(map[string]any{
		"prompt":        "A single centered heading that says hello.",
		"design_system": map[string]any{},
	})
	output, err := client.Generate(ctx, genai.GenerateRequest{
		Mode:      domain.JobModeGenerate,
		Input:     input,
		RequestID: "genaicheck",
	})
	if err != nil {
		exitWithError(fmt.Errorf("generation call failed: %w", err))
	}

	if err := worker.ValidateDesignOutput(domain.JobModeGenerate, output); err != nil {
		exitWithError(fmt.Errorf("provider output failed validation: %w", err))
	}

	fmt.Printf("Provider reachable; model %s returned a valid design (%d bytes)\n", client.Model(), len(output))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
