package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

type mockRecorder struct {
	counts []int
}

func (m *mockRecorder) RecordSessionsCleaned(count int) {
	m.counts = append(m.counts, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログから指定キーを持つ最初のエントリの値を返す。
func findLogField(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCleanupJob_Run_ExecutesDeleteQuery(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !mock.execCalled {
		t.Fatal("ExecContext が呼び出されなかった")
	}
	if !strings.Contains(mock.query, "DELETE FROM sessions") {
		t.Errorf("クエリに 'DELETE FROM sessions' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "expires_at") {
		t.Errorf("クエリに 'expires_at' 条件が含まれていない: %s", mock.query)
	}
}

func TestCleanupJob_Run_UsesCutoffParameter(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)
	job.now = fixedClock(now)

	_ = job.Run(context.Background())

	if len(mock.args) != 1 {
		t.Fatalf("ExecContext の引数の数 = %d, want 1", len(mock.args))
	}
	cutoff, ok := mock.args[0].(time.Time)
	if !ok {
		t.Fatalf("第1引数が time.Time ではない: %T", mock.args[0])
	}
	if !cutoff.Equal(now) {
		t.Errorf("cutoff = %v, want %v", cutoff, now)
	}
}

func TestCleanupJob_Run_GracePeriod(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)
	job.now = fixedClock(now)
	job.GracePeriod = 6 * time.Hour

	_ = job.Run(context.Background())

	cutoff := mock.args[0].(time.Time)
	if want := now.Add(-6 * time.Hour); !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	tests := []int64{0, 42}
	for _, n := range tests {
		var buf bytes.Buffer
		mock := &mockExecutor{result: &fakeResult{rowsAffected: n}}
		job := NewCleanupJob(mock, newTestLogger(&buf), nil)

		_ = job.Run(context.Background())

		count, ok := findLogField(&buf, "deleted_count")
		if !ok || count != float64(n) {
			t.Errorf("ログに deleted_count=%d が記録されていない。ログ出力: %s", n, buf.String())
		}
		if _, ok := findLogField(&buf, "duration_ms"); !ok {
			t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
		}
	}
}

func TestCleanupJob_Run_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{}
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 7}}
	job := NewCleanupJob(mock, newTestLogger(&buf), rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if len(rec.counts) != 1 || rec.counts[0] != 7 {
		t.Errorf("recorded = %v, want [7]", rec.counts)
	}
}

func TestCleanupJob_Run_ExecError(t *testing.T) {
	var buf bytes.Buffer
	sentinel := errors.New("connection refused")
	rec := &mockRecorder{}
	mock := &mockExecutor{err: sentinel}
	job := NewCleanupJob(mock, newTestLogger(&buf), rec)

	err := job.Run(context.Background())
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run() = %v, want wrapped %v", err, sentinel)
	}
	if len(rec.counts) != 0 {
		t.Error("失敗時にメトリクスを記録してはならない")
	}
	if !strings.Contains(buf.String(), "connection refused") {
		t.Errorf("エラーがログに記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_RowsAffectedError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{err: errors.New("not supported")}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("RowsAffected のエラーが返されるべき")
	}
}

func TestCleanupJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d: Run() がエラーを返した: %v", i, err)
		}
	}
}
