package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	forgehttp "github.com/xraph/go-utils/http"

	"github.com/xraph/bastion"
)

type statusError interface {
	StatusCode() int
}

func TestFailStatus(t *testing.T) {
	errStore := errors.New("store down")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"audit write failed", fmt.Errorf("%w: %w", bastion.ErrAuditWriteFailed, errStore), http.StatusServiceUnavailable},
		{"denial not on record", fmt.Errorf("%w: %w", bastion.ErrForbidden, bastion.ErrAuditWriteFailed), http.StatusServiceUnavailable},
		{"unknown principal", fmt.Errorf("%w: %q", bastion.ErrUnknownPrincipal, "ghost"), http.StatusNotFound},
		{"unknown role", bastion.ErrUnknownRole, http.StatusNotFound},
		{"forbidden", bastion.ErrForbidden, http.StatusForbidden},
		{"suspended", bastion.ErrSuspended, http.StatusForbidden},
		{"version conflict", bastion.ErrVersionConflict, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ctx := forgehttp.NewContext(rec, httptest.NewRequest(http.MethodPost, "/", nil), nil)

			err := fail(ctx, tt.err)
			if tt.want == http.StatusServiceUnavailable {
				if err != nil {
					t.Fatalf("fail returned %v, want response written", err)
				}
				if rec.Code != tt.want {
					t.Fatalf("status = %d, want %d", rec.Code, tt.want)
				}
				var body ErrorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatal(err)
				}
				if body.Error == "" {
					t.Fatal("expected error message in body")
				}
				return
			}

			var se statusError
			if !errors.As(err, &se) {
				t.Fatalf("err = %T %v, want an HTTP error", err, err)
			}
			if se.StatusCode() != tt.want {
				t.Fatalf("status = %d, want %d", se.StatusCode(), tt.want)
			}
		})
	}
}

func TestMapErrorPassesThrough(t *testing.T) {
	if mapError(nil) != nil {
		t.Fatal("nil should map to nil")
	}
	other := errors.New("boom")
	if got := mapError(other); !errors.Is(got, other) {
		t.Fatalf("unmapped err = %v, want passthrough", got)
	}
}
