package bill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/bill-tracker/internal/scanning"
)

var (
	// ErrNoFiles is returned when a batch is started without input files
	ErrNoFiles = errors.New("no bill images selected")
	// ErrMissingCredentials is returned when the scanner needs an API key and none was given
	ErrMissingCredentials = fmt.Errorf("starting batch: %w", scanning.ErrMissingCredentials)
)

// ImageLoader reads a bill image from a path
type ImageLoader interface {
	Load(path string) (*scanning.Image, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs extraction batches
type Service struct {
	scanner    scanning.Scanner
	loader     ImageLoader
	timeSource TimeSource
}

// NewService creates a new Service reading images from the local filesystem
func NewService(scanner scanning.Scanner) *Service {
	return &Service{
		scanner:    scanner,
		loader:     scanning.FileLoader{},
		timeSource: &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(scanner scanning.Scanner, loader ImageLoader, timeSrc TimeSource) *Service {
	return &Service{
		scanner:    scanner,
		loader:     loader,
		timeSource: timeSrc,
	}
}

// Run extracts every bill in paths, one at a time and in order.
// Per-file failures are recorded in the result and never stop the batch;
// only missing input, missing credentials or a cancelled context are returned as errors.
func (s *Service) Run(ctx context.Context, paths []string, apiKey string) (*BatchResult, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	if s.scanner.RequiresKey() && strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredentials
	}

	slog.Info("Processing bills", "count", len(paths))

	result := &BatchResult{
		Submitted: len(paths),
		Outcomes:  make([]Outcome, 0, len(paths)),
		Records:   make([]Record, 0, len(paths)),
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("processing bills: %w", err)
		}

		outcome := s.processBill(ctx, path, apiKey)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.OK() {
			result.Records = append(result.Records, *outcome.Record)
		}
	}

	result.Totals = SumTotals(result.Records)
	result.FinishedAt = s.timeSource.Now()

	slog.Info("Finished processing bills",
		"submitted", result.Submitted,
		"extracted", result.Extracted(),
		"total_amount_due", result.Totals.TotalAmountDue.String(),
	)
	return result, nil
}

// processBill runs load, scan and parse for a single file
func (s *Service) processBill(ctx context.Context, path, apiKey string) Outcome {
	filename := filepath.Base(path)
	fail := func(kind FailureKind, err error, raw string) Outcome {
		slog.Error("Failed to extract bill",
			"filename", filename,
			"kind", kind,
			"error", err,
		)
		if raw != "" {
			slog.Debug("Raw model response", "filename", filename, "raw", raw)
		}
		return Outcome{Failure: &Failure{
			Path:     path,
			Filename: filename,
			Kind:     kind,
			Err:      err,
			Raw:      raw,
		}}
	}

	slog.Info("Analyzing bill", "filename", filename)

	img, err := s.loader.Load(path)
	if err != nil {
		return fail(FailureIO, err, "")
	}

	text, err := s.scanner.ScanBill(ctx, img, apiKey)
	if err != nil {
		return fail(FailureTransport, fmt.Errorf("scanning bill: %w", err), "")
	}

	data, err := scanning.ParseBill(text)
	if err != nil {
		return fail(FailureMalformed, fmt.Errorf("parsing bill data: %w", err), text)
	}

	return Outcome{Record: &Record{Filename: filename, BillData: *data}}
}
