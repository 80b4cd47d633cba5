package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"not found", eris.Wrap(ErrNotFound, "soil: HTTP 404"), ErrorCategoryNotFound},
		{"bad request", eris.Wrap(ErrBadRequest, "weather: HTTP 400"), ErrorCategoryBadRequest},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", eris.Wrapf(ErrUpstreamFailure, "soil: HTTP %d", 503), ErrorCategoryUpstream5xx},
		{"malformed", eris.Wrap(ErrMalformedResponse, "decode"), ErrorCategoryParsing},
		{"circuit open", eris.Wrap(ErrCircuitOpen, "soil"), ErrorCategoryCircuitOpen},
		{"wrapped timeout", fmt.Errorf("request: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"network in message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"nil", nil, ""},
		{"timeout", context.DeadlineExceeded, models.KindTimeout},
		{"not found", eris.Wrap(ErrNotFound, "soil"), models.KindInsufficientData},
		{"upstream", ErrUpstreamFailure, models.KindUpstreamUnavailable},
		{"circuit open", ErrCircuitOpen, models.KindUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
