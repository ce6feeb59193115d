// Command speech-client is a small CLI for exercising a running speech-service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Flag names.
const (
	flagText    = "text"
	flagOutput  = "output"
	flagURL     = "url"
	flagSpeed   = "speed"
	flagTimeout = "timeout"
	flagHealth  = "health"
)

// Flag descriptions.
const (
	flagTextDesc    = "Text to convert to speech"
	flagOutputDesc  = "Output file path (.wav)"
	flagURLDesc     = "Base URL of the speech service"
	flagSpeedDesc   = "Playback speed factor"
	flagTimeoutDesc = "Request timeout"
	flagHealthDesc  = "Check service health and exit"
)

// Defaults.
const (
	defaultOutputFile = "output.wav"
	defaultServiceURL = "http://localhost:8000"
	defaultSpeed      = 0.94
	defaultTimeout    = 5 * time.Minute
)

var errTextRequired = errors.New("--text must be provided")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	output  string
	url     string
	speed   float64
	timeout time.Duration
	health  bool
}

type generateRequest struct {
	Text        string  `json:"text"`
	SpeedFactor float64 `json:"speed_factor"`
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	client := &http.Client{Timeout: flags.timeout}

	if flags.health {
		return checkHealth(ctx, client, flags.url)
	}

	if flags.text == "" {
		flag.Usage()

		return errTextRequired
	}

	return generate(ctx, client, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.StringVar(&flags.url, flagURL, defaultServiceURL, flagURLDesc)
	flag.Float64Var(&flags.speed, flagSpeed, defaultSpeed, flagSpeedDesc)
	flag.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.Parse()

	return flags
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		baseURL+"/api/health",
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			log.Printf("error closing response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"service is not healthy: unexpected status %d",
			resp.StatusCode,
		)
	}

	fmt.Println("Speech service is healthy")

	return nil
}

func generate(ctx context.Context, client *http.Client, flags appFlags) error {
	payload, err := json.Marshal(generateRequest{
		Text:        flags.text,
		SpeedFactor: flags.speed,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		flags.url+"/api/generate",
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to build generate request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("generate request failed: %w", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			log.Printf("error closing response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf(
			"generate failed with status %d: %s",
			resp.StatusCode,
			string(body),
		)
	}

	return saveAudio(resp.Body, flags.output)
}

func saveAudio(body io.Reader, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := io.Copy(file, body)
	if err != nil {
		closeErr := file.Close()
		if closeErr != nil {
			log.Printf("error closing output file: %v", closeErr)
		}

		return fmt.Errorf("failed to write output file: %w", err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	fmt.Printf("Generated: %s (%d bytes)\n", outputPath, written)

	return nil
}
