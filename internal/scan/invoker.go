// Package scan provides local scan invoker implementations. The coordinator
// treats every invoker as opaque: failures affect counters only.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// Invoker runs one local hardware scan
type Invoker interface {
	Invoke(ctx context.Context) error
}

// Func adapts a plain function to the Invoker interface
type Func func(ctx context.Context) error

// Invoke implements Invoker
func (f Func) Invoke(ctx context.Context) error { return f(ctx) }

// CommandInvoker runs a configured shell command for each scan. This is the
// usual deployment shape: the command drives the UART collector directly.
type CommandInvoker struct {
	Command string
}

// Invoke implements Invoker
func (c *CommandInvoker) Invoke(ctx context.Context) error {
	parts := strings.Fields(c.Command)
	if len(parts) == 0 {
		return fmt.Errorf("scan command not configured")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Warn().Err(err).Str("command", parts[0]).Msg("Scan command failed")
		return fmt.Errorf("scan command: %w", err)
	}

	log.Debug().Str("command", parts[0]).Int("outputBytes", len(out)).Msg("Scan command completed")
	return nil
}

// HTTPInvoker posts a scan request to a gateway agent's scan endpoint
type HTTPInvoker struct {
	URL    string
	Client *http.Client
}

// NewHTTPInvoker creates an HTTP scan invoker
func NewHTTPInvoker(url string, timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Invoke implements Invoker
func (h *HTTPInvoker) Invoke(ctx context.Context) error {
	body, _ := json.Marshal(models.ScanRequest{Reason: models.ReasonChange})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("scan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("scan endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
