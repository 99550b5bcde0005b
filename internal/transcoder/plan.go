package transcoder

// ChunkSpan is one planned cut of the source timeline.
type ChunkSpan struct {
	Index    int
	Start    float64
	Duration float64
}

// PlanChunks computes chunk boundaries for a file of totalSeconds cut at
// chunkSeconds. Boundaries are contiguous and the final span absorbs the
// remainder, so the spans always cover [0, totalSeconds) exactly.
//
// With overlapSeconds > 0 every span after the first starts that much
// earlier than its boundary; coverage still holds, spans just overlap.
func PlanChunks(totalSeconds, chunkSeconds, overlapSeconds float64) []ChunkSpan {
	if totalSeconds <= 0 {
		return nil
	}
	if chunkSeconds <= 0 || chunkSeconds >= totalSeconds {
		return []ChunkSpan{{Index: 0, Start: 0, Duration: totalSeconds}}
	}

	var spans []ChunkSpan
	for start := 0.0; start < totalSeconds; start += chunkSeconds {
		end := start + chunkSeconds
		if end > totalSeconds {
			end = totalSeconds
		}
		// Avoid a trailing sliver shorter than a second: merge into the
		// previous span instead.
		if totalSeconds-start < 1 && len(spans) > 0 {
			spans[len(spans)-1].Duration += totalSeconds - start
			break
		}

		cutStart := start
		if overlapSeconds > 0 && len(spans) > 0 {
			cutStart = start - overlapSeconds
			if cutStart < 0 {
				cutStart = 0
			}
		}
		spans = append(spans, ChunkSpan{
			Index:    len(spans),
			Start:    cutStart,
			Duration: end - cutStart,
		})
	}
	return spans
}
