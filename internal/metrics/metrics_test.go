package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsByStatus(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	r.Observe(ctx, "anno", true, 2*time.Millisecond)
	r.Observe(ctx, "anno", true, time.Millisecond)
	r.Observe(ctx, "anno", false, time.Millisecond)
	r.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(r.tasks.WithLabelValues("anno", "success")); got != 2 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(r.tasks.WithLabelValues("anno", "error")); got != 1 {
		t.Fatalf("error count = %v", got)
	}
	if n := testutil.CollectAndCount(r.tasks); n != 2 {
		t.Fatalf("expected 2 series, got %d", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Observe(context.Background(), "export", true, 5*time.Millisecond)
	path := filepath.Join(t.TempDir(), "dsmanager.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	for _, want := range []string{`dsmanager_tasks_total{operation="export",status="success"} 1`, "dsmanager_task_duration_seconds_count"} {
		if !strings.Contains(out, want) {
			t.Fatalf("textfile missing %q:\n%s", want, out)
		}
	}
}
