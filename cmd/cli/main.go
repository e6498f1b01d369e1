package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const usage = `usage: botwatch-cli <command>

commands:
  status                     current public status
  uptime [hours]             rolling uptime (24h/7d/30d when hours is omitted)
  daily                      30-day summary
  run                        run a check now (admin key)
  override <status|clear>    set or clear the status override (admin key)

env: API_URL (default http://localhost:8080), API_KEY`

type client struct {
	base string
	key  string
	http *http.Client
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	base := os.Getenv("API_URL")
	if base == "" {
		base = os.Getenv("API_BASE")
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{
		base: strings.TrimRight(base, "/"),
		key:  os.Getenv("API_KEY"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
	if err := run(c, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *client, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "status":
		var v struct {
			Status string `json:"status"`
		}
		if err := c.call(http.MethodGet, "/api/status", nil, &v); err != nil {
			return err
		}
		fmt.Fprintln(out, v.Status)
	case "uptime":
		if len(args) > 0 {
			var v struct {
				Hours  int     `json:"hours"`
				Uptime float64 `json:"uptime"`
			}
			if err := c.call(http.MethodGet, "/api/uptime?hours="+args[0], nil, &v); err != nil {
				return err
			}
			fmt.Fprintf(out, "%dh: %.2f%%\n", v.Hours, v.Uptime)
			return nil
		}
		var v map[string]float64
		if err := c.call(http.MethodGet, "/api/uptime", nil, &v); err != nil {
			return err
		}
		fmt.Fprintf(out, "24h: %.2f%%  7d: %.2f%%  30d: %.2f%%\n", v["24h"], v["7d"], v["30d"])
	case "daily":
		var days []struct {
			Day    string  `json:"day"`
			Uptime float64 `json:"uptime"`
			Checks int     `json:"checks"`
		}
		if err := c.call(http.MethodGet, "/api/daily", nil, &days); err != nil {
			return err
		}
		for _, d := range days {
			fmt.Fprintf(out, "%s  %6.2f%%  %d checks\n", d.Day, d.Uptime, d.Checks)
		}
	case "run":
		var v struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
		}
		err := c.call(http.MethodPost, "/api/run-check", nil, &v)
		if err != nil && v.Message == "" {
			return err
		}
		fmt.Fprintln(out, v.Message)
		if !v.OK {
			return fmt.Errorf("check failed")
		}
	case "override":
		if len(args) != 1 {
			return fmt.Errorf("override needs a status or 'clear'")
		}
		body := map[string]any{"status": args[0]}
		if args[0] == "clear" {
			body["status"] = nil
		}
		var v struct {
			Status string `json:"status"`
		}
		if err := c.call(http.MethodPost, "/api/override", body, &v); err != nil {
			return err
		}
		fmt.Fprintln(out, "status now:", v.Status)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
	return nil
}

// call sends body as JSON and decodes the response into out. Non-2xx
// responses are returned as errors after out is filled, if the body decodes.
func (c *client) call(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	decodeErr := json.Unmarshal(raw, out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return decodeErr
}
