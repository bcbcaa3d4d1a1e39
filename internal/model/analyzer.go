package model

import "context"

// Analyzer defines the standard interface for an AI analyzer.
type Analyzer interface {
	// AnalyzeReport receives a text report and returns the model's
	// assessment of it.
	AnalyzeReport(ctx context.Context, input string) (string, error)
}
