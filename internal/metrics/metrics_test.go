package metrics

import (
	"context"
	"testing"
)

func TestNewWithEmptyPathReturnsStub(t *testing.T) {
	sink, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.(*stubSink); !ok {
		t.Fatalf("New(\"\") = %T, want *stubSink", sink)
	}
}

func TestStubSinkNeverErrors(t *testing.T) {
	sink, _ := New("")
	ctx := context.Background()

	if err := sink.Add(ctx, "batch_time_execution_s", 1.5, ""); err != nil {
		t.Errorf("Add: %v", err)
	}
	if err := sink.Increment(ctx, "total_deleted", 3, "host=db1"); err != nil {
		t.Errorf("Increment: %v", err)
	}
	if err := sink.AddArray(ctx, "total_cnt", []float64{1, 2}, []string{"host=a", "host=b"}); err != nil {
		t.Errorf("AddArray: %v", err)
	}
	if err := sink.IncrementArray(ctx, "total_cnt", []float64{1, 2}, []string{"host=a", "host=b"}); err != nil {
		t.Errorf("IncrementArray: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStubSinkIncrementAccumulatesInternally(t *testing.T) {
	s := &stubSink{totals: map[string]float64{}}
	ctx := context.Background()

	_ = s.Increment(ctx, "total_deleted", 3, "")
	_ = s.Increment(ctx, "total_deleted", 4, "")

	if got := s.totals[totalKey("total_deleted", "")]; got != 7 {
		t.Errorf("running total = %v, want 7", got)
	}
}
