package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/signature"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/config"
)

// ingestctl signs and submits asset payloads to the ingest webhook. The
// shared secret and key id come from the same config file and AI_INGEST_*
// environment variables the service reads.
//
// Usage:
//
//	ingestctl sign -file asset.json
//	ingestctl send -file asset.json [-url http://localhost:8081] [-dry-run]
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Ingest.Configured() {
		fmt.Fprintln(os.Stderr, "error: AI_INGEST_SECRET and AI_INGEST_API_KEY_ID must be set")
		os.Exit(1)
	}

	switch args[0] {
	case "sign":
		cmdSign(cfg.Ingest, args[1:])
	case "send":
		cmdSend(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func cmdSign(ic config.IngestConfig, args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	file := fs.String("file", "-", "payload file, - for stdin")
	fs.Parse(args)

	body := readPayload(*file)
	h := http.Header{}
	signature.SetHeaders(h, ic.APIKeyID, []byte(ic.Secret), body, time.Now())

	for _, name := range []string{signature.HeaderKey, signature.HeaderTimestamp, signature.HeaderSignature} {
		fmt.Printf("%s: %s\n", name, h.Get(name))
	}
}

func cmdSend(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	file := fs.String("file", "-", "payload file, - for stdin")
	baseURL := fs.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port), "base URL of the ingest service")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	dryRun := fs.Bool("dry-run", false, "print the signed request instead of sending it")
	fs.Parse(args)

	body := readPayload(*file)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *baseURL+"/api/v1/assets/ingest", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	signature.SetHeaders(req.Header, cfg.Ingest.APIKeyID, []byte(cfg.Ingest.Secret), body, time.Now())

	if *dryRun {
		fmt.Printf("POST %s\n", req.URL)
		for _, name := range []string{"Content-Type", signature.HeaderKey, signature.HeaderTimestamp, signature.HeaderSignature} {
			fmt.Printf("%s: %s\n", name, req.Header.Get(name))
		}
		fmt.Printf("\n%s\n", body)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s\n%s\n", resp.Status, bytes.TrimSpace(out))
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func readPayload(path string) []byte {
	var (
		body []byte
		err  error
	)
	if path == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading payload: %v\n", err)
		os.Exit(1)
	}
	return body
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  ingestctl sign -file <payload.json>
  ingestctl send -file <payload.json> [-url <base-url>] [-timeout 30s] [-dry-run]

Global flags:
  -config  path to config file (default configs/development.yaml)`)
}
