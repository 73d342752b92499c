package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "empty source",
			err:      fmt.Errorf("parse upload: %w", ErrEmptySource),
			wantCode: "CSV001",
		},
		{
			name:     "missing columns",
			err:      &MissingColumnsError{Columns: []string{"town"}, Header: "Header(city)"},
			wantCode: "CSV002",
		},
		{
			name:     "unknown charset",
			err:      fmt.Errorf("%w: %q", ErrUnknownCharset, "klingon"),
			wantCode: "CSV003",
		},
		{
			name:     "body too large",
			err:      errors.New("http: request body too large"),
			wantCode: "CSV004",
		},
		{
			name:     "unbalanced quotes in a workbook cell",
			err:      errors.New(`unbalanced quotes in cell A2: "5\" pipe"`),
			wantCode: "CSV006",
		},
		{
			name:     "unknown converter inside config error",
			err:      configErr("c", fmt.Errorf("%w for name: x", ErrUnknownConverter)),
			wantCode: "CFG001",
		},
		{
			name:     "joined config errors use the first",
			err:      errors.Join(configErr("a", ErrInvalidPattern), configErr("b", ErrUnsupportedType)),
			wantCode: "CFG003",
		},
		{
			name:     "frozen registry",
			err:      fmt.Errorf("register converter %q: %w", "x", ErrRegistryFrozen),
			wantCode: "CFG006",
		},
		{
			name:     "unknown shape",
			err:      errors.New(`unknown shape "cities"`),
			wantCode: "SRC001",
		},
		{
			name:     "context canceled",
			err:      fmt.Errorf("parse: %w", context.Canceled),
			wantCode: "REQ002",
		},
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			wantCode: "REQ003",
		},
		{
			name:     "table does not exist",
			err:      errors.New(`ERROR: relation "cities" does not exist (SQLSTATE 42P01)`),
			wantCode: "DB003",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("DUPLICATE KEY value violates"),
			wantCode: "DB001",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrEmptySource)

	expected := "The file is empty (Code: CSV001). Upload a CSV file with a header line"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if FormatUserError(nil) != "" {
		t.Errorf("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrInvalidPattern, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	technical := fmt.Errorf("read upload: %w", ErrEmptySource)
	ue := NewUserError(technical)

	if ue.User.Code != "CSV001" {
		t.Errorf("code = %q, want CSV001", ue.User.Code)
	}
	if ue.Error() != ue.User.Message {
		t.Errorf("Error() = %q, want the user message", ue.Error())
	}
	if !errors.Is(ue, ErrEmptySource) {
		t.Errorf("UserError should unwrap to the technical error")
	}
}
