package drip

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ketowell/waitlist-manager/internal/entity"
)

// WriteSummary prints a run summary for operators: per type counts, totals
// and wall clock duration.
func WriteSummary(w io.Writer, s *entity.DripRunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "drip run %s finished in %s\n", s.RunKey, s.Duration.Round(time.Millisecond))
	if s.Reconciled > 0 {
		fmt.Fprintf(tw, "closed %d stale attempts as unknown\n", s.Reconciled)
	}
	fmt.Fprintln(tw, "TYPE\tELIGIBLE\tSENT\tFAILED\tFAILURES")
	eligible := 0
	for _, ts := range s.Types {
		eligible += ts.Eligible
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", ts.EmailType, ts.Eligible, ts.Sent, ts.Failed, formatKinds(ts.FailedByKind))
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t\n", eligible, s.Sent, s.Failed)

	return tw.Flush()
}

func formatKinds(kinds map[entity.FailureKind]int) string {
	parts := make([]string, 0, len(kinds))
	for k, n := range kinds {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
