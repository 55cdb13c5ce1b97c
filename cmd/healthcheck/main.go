// Command healthcheck probes a running edge and exits non-zero when any
// probe fails. It is meant for container HEALTHCHECK directives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"vidplay/pkg/logger"
)

type config struct {
	Targets    []string
	Timeout    time.Duration
	Concurrent int
}

func loadConfig() config {
	timeout, err := time.ParseDuration(getenv("CHECK_TIMEOUT", "2s"))
	if err != nil || timeout <= 0 {
		timeout = 2 * time.Second
	}
	port := getenv("PORT", "8080")
	targets := splitCSV(getenv("CHECK_URLS", "http://127.0.0.1:"+port+"/health"))
	return config{
		Targets:    targets,
		Timeout:    timeout,
		Concurrent: atoiDefault(os.Getenv("CHECK_CONCURRENCY"), 4),
	}
}

type probeResult struct {
	URL     string
	OK      bool
	Status  int
	Latency time.Duration
	Err     error
}

func main() {
	log := logger.New(logger.Options{Level: os.Getenv("LOG_LEVEL")})
	cfg := loadConfig()
	client := &http.Client{Timeout: cfg.Timeout}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout+time.Second)
	defer cancel()
	results := runChecks(ctx, client, cfg.Targets, cfg.Concurrent, log)
	for _, res := range results {
		if !res.OK {
			os.Exit(1)
		}
	}
}

func runChecks(ctx context.Context, client *http.Client, targets []string, concurrent int, log zerolog.Logger) []probeResult {
	if concurrent <= 0 {
		concurrent = 1
	}
	results := make([]probeResult, len(targets))
	p := pool.New().WithMaxGoroutines(concurrent)
	for i, target := range targets {
		p.Go(func() {
			res := probe(ctx, client, target)
			results[i] = res
			ev := log.Info()
			if !res.OK {
				ev = log.Error().Err(res.Err)
			}
			ev.Str("url", res.URL).Int("status", res.Status).Dur("latency", res.Latency).Msg("probe")
		})
	}
	p.Wait()
	return results
}

func probe(ctx context.Context, client *http.Client, url string) probeResult {
	res := probeResult{URL: url}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set("User-Agent", "vidplay-healthcheck")
	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode
	res.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !res.OK {
		res.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return res
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func atoiDefault(v string, def int) int {
	if v == "" {
		return def
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil || out <= 0 {
		return def
	}
	return out
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
