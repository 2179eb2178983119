package user

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hitoshi/talkbox/internal/model"
)

// TestKind_APIError は各エラー種別が異なるエラーコードに対応することを検証する。
func TestKind_APIError(t *testing.T) {
	tests := []struct {
		kind Kind
		code string
	}{
		{KindNotAuthenticated, model.ErrCodeNotAuthenticated},
		{KindInvalidCredential, model.ErrCodeInvalidCredential},
		{KindStaleSession, model.ErrCodeStaleSession},
		{KindPartialFailure, model.ErrCodePartialDeletion},
		{KindRevocationFailed, model.ErrCodeRevocationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			apiErr := tt.kind.APIError()
			if apiErr.Code != tt.code {
				t.Errorf("Code = %s, want %s", apiErr.Code, tt.code)
			}
			if apiErr.Message == "" || apiErr.Action == "" {
				t.Error("Message and Action must be set")
			}
		})
	}
}

func TestDeletionError_Error(t *testing.T) {
	err := &DeletionError{
		Kind:               KindPartialFailure,
		Stage:              StageCommit,
		BatchesCommitted:   2,
		MutationsCommitted: 1000,
		Err:                errors.New("quota"),
	}

	msg := err.Error()
	for _, want := range []string{"commit", "partial_failure", "2 batches", "1000 mutations", "quota"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", &DeletionError{Kind: KindStaleSession, Stage: StageGate})

	kind, ok := KindOf(wrapped)
	if !ok || kind != KindStaleSession {
		t.Errorf("KindOf() = %v, %v", kind, ok)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain error) should report false")
	}
}
