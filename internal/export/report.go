package export

import (
	"fmt"
	"strings"
)

// Report formats the session summary printed by the CLI.
func (r *Result) Report(build string) string {
	var b strings.Builder
	b.WriteString("--- [EXPORT REPORT] ---\n")
	fmt.Fprintf(&b, "Build: %s\n", build)
	fmt.Fprintf(&b, "Session: %s\n", r.SessionID)
	fmt.Fprintf(&b, "Output: %dx%d %s (%s)\n", r.Width, r.Height, r.Container.Name, r.Container.MimeType)
	fmt.Fprintf(&b, "Duration: %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(&b, "Size: %.2f MiB\n", float64(len(r.Blob))/(1<<20))
	fmt.Fprintf(&b, "Scenes: %d recorded, %d skipped\n", len(r.Scenes)-r.Skipped(), r.Skipped())
	for _, s := range r.Scenes {
		if s.Skipped {
			fmt.Fprintf(&b, "  [!] #%d %s skipped: %v\n", s.Index+1, s.ID, s.Err)
			continue
		}
		fmt.Fprintf(&b, "  [>] #%d %s %.2fs (%d frames)\n", s.Index+1, s.ID, s.Shown.Seconds(), s.Frames)
	}
	fmt.Fprintf(&b, "Resources: %s\n", r.Stats)
	b.WriteString("-----------------------\n")
	return b.String()
}
