package pipeline

import (
	"fmt"
	"strings"
)

// Summary aggregates per-item outcomes for one run. It always holds
// Processed == Succeeded + Failed and
// TotalFetched == processed items + the three skip counts.
type Summary struct {
	TotalFetched     int
	SkippedCompleted int
	SkippedFailed    int
	SkippedNoImage   int
	Processed        int
	Succeeded        int
	Failed           int
}

// String renders the summary banner printed at the end of a run.
func (s Summary) String() string {
	line := strings.Repeat("=", 50)
	var b strings.Builder
	b.WriteString(line + "\n")
	b.WriteString("PIPELINE SUMMARY\n")
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "  total_fetched: %d\n", s.TotalFetched)
	fmt.Fprintf(&b, "  skipped_completed: %d\n", s.SkippedCompleted)
	fmt.Fprintf(&b, "  skipped_failed: %d\n", s.SkippedFailed)
	fmt.Fprintf(&b, "  skipped_no_image: %d\n", s.SkippedNoImage)
	fmt.Fprintf(&b, "  processed: %d\n", s.Processed)
	fmt.Fprintf(&b, "  succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "  failed: %d\n", s.Failed)
	b.WriteString(line)
	return b.String()
}
