package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/phx_devtools/internal/aggregator"
)

func asCoded(err error, target **CodedError) bool {
	return errors.As(err, target)
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", newError(CodeValidation, "bad", nil), http.StatusBadRequest},
		{"not_found", newError(CodeNotFound, "gone", nil), http.StatusNotFound},
		{"unavailable", newError(CodeUnavailable, "down", nil), http.StatusServiceUnavailable},
		{"invalid_tab", fmt.Errorf("wrap: %w", aggregator.ErrInvalidTab), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var se huma.StatusError
			if !errors.As(mapErr(tt.err), &se) {
				t.Fatalf("mapErr() did not return a huma status error")
			}
			if se.GetStatus() != tt.want {
				t.Fatalf("status = %d, want %d", se.GetStatus(), tt.want)
			}
		})
	}
	if mapErr(nil) != nil {
		t.Fatalf("mapErr(nil) != nil")
	}
}
