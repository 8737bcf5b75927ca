// Package runner calls a Piston compatible code execution service.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 1 << 20

var (
	ErrEmptyCode        = errors.New("code empty")
	ErrUnsupported      = errors.New("language not supported by runner")
	ErrRunnerFailed     = errors.New("runner request failed")
	ErrRunnerBadPayload = errors.New("runner returned malformed response")
)

type Request struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"stdin,omitempty"`
}

type Result struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type pistonFile struct {
	Content string `json:"content"`
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
	Stdin    string       `json:"stdin,omitempty"`
}

type pistonStage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

type pistonResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Run      pistonStage  `json:"run"`
	Compile  *pistonStage `json:"compile"`
	Message  string       `json:"message"`
}

// Run executes one program and waits for its output.
func (c *Client) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Code) == "" {
		return Result{}, ErrEmptyCode
	}
	start := time.Now()
	res, err := c.run(ctx, req)
	metrics.RunDuration.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RunRequests.WithLabelValues(outcome).Inc()
	log.Info().Err(err).Str("module", "runner").Str("language", req.Language).Dur("took", time.Since(start)).Msg("run")
	return res, err
}

func (c *Client) run(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(pistonRequest{
		Language: req.Language,
		Version:  "*",
		Files:    []pistonFile{{Content: req.Code}},
		Stdin:    req.Stdin,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRunnerFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRunnerFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrRunnerFailed, err)
	}

	var pr pistonResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRunnerBadPayload, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(pr.Message, "runtime is unknown"):
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, req.Language)
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrRunnerFailed, resp.StatusCode, pr.Message)
	}

	out := Result{Language: pr.Language, Version: pr.Version}
	stage := pr.Run
	// A failed compile step replaces the run output.
	if pr.Compile != nil && pr.Compile.Code != nil && *pr.Compile.Code != 0 {
		stage = *pr.Compile
	}
	out.Stdout = stage.Stdout
	out.Stderr = stage.Stderr
	if stage.Code != nil {
		out.ExitCode = *stage.Code
	}
	if stage.Signal != nil {
		out.Signal = *stage.Signal
	}
	return out, nil
}
