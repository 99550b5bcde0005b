package transcoder

import (
	"math"
	"testing"
)

func TestPlanChunksCoverage(t *testing.T) {
	cases := []struct {
		name         string
		totalSeconds float64
		chunkSeconds float64
	}{
		{"even split", 600, 300},
		{"remainder", 750, 300},
		{"single chunk", 120, 300},
		{"many chunks", 3725, 180},
		{"tiny remainder merged", 600.5, 300},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans := PlanChunks(tc.totalSeconds, tc.chunkSeconds, 0)
			if len(spans) == 0 {
				t.Fatal("expected at least one span")
			}

			if spans[0].Start != 0 {
				t.Fatalf("first span starts at %v, want 0", spans[0].Start)
			}
			for i := 1; i < len(spans); i++ {
				prevEnd := spans[i-1].Start + spans[i-1].Duration
				if math.Abs(spans[i].Start-prevEnd) > 1e-9 {
					t.Fatalf("gap or overlap between span %d (ends %v) and span %d (starts %v)",
						i-1, prevEnd, i, spans[i].Start)
				}
				if spans[i].Index != i {
					t.Fatalf("span %d has index %d", i, spans[i].Index)
				}
			}

			last := spans[len(spans)-1]
			if math.Abs(last.Start+last.Duration-tc.totalSeconds) > 1e-9 {
				t.Fatalf("spans cover up to %v, want %v", last.Start+last.Duration, tc.totalSeconds)
			}
		})
	}
}

func TestPlanChunksOverlap(t *testing.T) {
	spans := PlanChunks(600, 180, 2)
	if len(spans) != 4 {
		t.Fatalf("expected 4 spans, got %d", len(spans))
	}
	if spans[0].Start != 0 {
		t.Fatalf("first span must not reach back, starts at %v", spans[0].Start)
	}
	for i := 1; i < len(spans); i++ {
		boundary := float64(i) * 180
		if math.Abs(spans[i].Start-(boundary-2)) > 1e-9 {
			t.Fatalf("span %d starts at %v, want %v", i, spans[i].Start, boundary-2)
		}
	}
	last := spans[len(spans)-1]
	if math.Abs(last.Start+last.Duration-600) > 1e-9 {
		t.Fatalf("overlapped spans must still cover the full duration, got %v", last.Start+last.Duration)
	}
}

func TestPlanChunksDegenerate(t *testing.T) {
	if spans := PlanChunks(0, 300, 0); spans != nil {
		t.Fatalf("zero duration should plan no chunks, got %d", len(spans))
	}
	spans := PlanChunks(100, 0, 0)
	if len(spans) != 1 || spans[0].Duration != 100 {
		t.Fatalf("non-positive chunk size should yield one full-length span, got %#v", spans)
	}
}
