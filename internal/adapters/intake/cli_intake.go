package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CLIIntake processes saved .eml files and prints the decisions
type CLIIntake struct {
	handler       *Handler
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	out           io.Writer
	verbose       bool
	jsonOutput    bool
	mu            sync.Mutex
}

// NewCLIIntake creates a new CLI intake writing to out
func NewCLIIntake(handler *Handler, tp *utils.TextProcessor, logger *zap.Logger, out io.Writer, verbose, jsonOutput bool) *CLIIntake {
	if out == nil {
		out = os.Stdout
	}
	return &CLIIntake{
		handler:       handler,
		textProcessor: tp,
		logger:        logger,
		out:           out,
		verbose:       verbose,
		jsonOutput:    jsonOutput,
	}
}

// CollectFiles expands directories into the .eml files they contain
func CollectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// ProcessReader parses and processes a single message
func (c *CLIIntake) ProcessReader(ctx context.Context, name string, r io.Reader) (*core.IntakeResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	email, err := ParseMessage(raw, c.textProcessor)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	start := time.Now()
	result, err := c.handler.Handle(ctx, email)
	if err != nil {
		c.logger.Error("Failed to process email", zap.Error(err), zap.String("file", name))
		return nil, err
	}
	c.print(name, email, result, time.Since(start))
	return result, nil
}

// ProcessFiles handles files with at most workers in flight. Files are
// independent; the first error is returned after all files finish.
func (c *CLIIntake) ProcessFiles(ctx context.Context, files []string, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, file := range files {
		g.Go(func() error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", file, err)
			}
			defer f.Close()
			_, err = c.ProcessReader(ctx, file, f)
			return err
		})
	}
	return g.Wait()
}

func (c *CLIIntake) print(name string, email *core.Email, result *core.IntakeResult, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.jsonOutput {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			File   string             `json:"file"`
			Result *core.IntakeResult `json:"result"`
		}{name, result}); err != nil {
			c.logger.Warn("Failed to encode result", zap.Error(err))
		}
		return
	}

	fmt.Fprintf(c.out, "\n=== %s ===\n", name)
	fmt.Fprintf(c.out, "From: %s\n", email.From)
	fmt.Fprintf(c.out, "Subject: %s\n", email.Subject)
	fmt.Fprintf(c.out, "Broker: %s\n", email.BrokerID)
	if c.verbose {
		preview := email.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Fprintf(c.out, "\nBody preview:\n%s\n", preview)
	}

	fmt.Fprintf(c.out, "\nAction: %s\n", result.Action)
	fmt.Fprintf(c.out, "Reason: %s\n", result.Reason)
	if result.FreightType != "" {
		fmt.Fprintf(c.out, "Freight type: %s (%d%%)\n", result.FreightType, result.TypeConfidence)
	}
	fmt.Fprintf(c.out, "Confidence: %d\n", result.Confidence)
	if result.IsReply {
		fmt.Fprintf(c.out, "Reply to request: %s\n", result.ClarificationRequestID)
	}
	if len(result.ClarificationNeeded) > 0 {
		fmt.Fprintf(c.out, "Missing: %s\n", strings.Join(result.ClarificationNeeded, ", "))
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(c.out, "Warning: %s\n", w)
	}
	if result.LoadCreated {
		fmt.Fprintf(c.out, "Load: %s (review: %t)\n", result.LoadID, result.RequiresReview)
	}
	fmt.Fprintf(c.out, "Processing time: %v\n", elapsed)
}
