// Command healthcheck probes a running jirastopwatch over its local API and
// exits non-zero when it is unreachable. With -v it prints whether a tracker
// session is active.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
)

const defaultAddr = "127.0.0.1:7070"

type healthResponse struct {
	Status   string `json:"status"`
	LoggedIn bool   `json:"logged_in"`
}

func main() {
	verbose := flag.Bool("v", false, "print the health status")
	flag.Parse()
	os.Exit(check(os.Getenv("STOPWATCH_LISTEN_ADDR"), *verbose))
}

func check(rawAddr string, verbose bool) int {
	addr := normalizeAddr(rawAddr)

	client := &http.Client{Timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/v1/health", addr), nil)
	if err != nil {
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "jirastopwatch not reachable at %s: %v\n", addr, err)
		}
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 1
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status != "ok" {
		return 1
	}

	if verbose {
		fmt.Printf("jirastopwatch at %s: %s, logged_in=%t\n", addr, health.Status, health.LoggedIn)
	}
	return 0
}

// normalizeAddr turns a bind address into one the probe can dial: a
// bind-all host becomes loopback.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
