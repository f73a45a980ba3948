// Package report renders the run summary handed to users at the end of a
// mapping run.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"govlsm/domain/core"
	"govlsm/domain/stats"
)

// Summary collects the headline numbers of one run.
type Summary struct {
	RunID        core.RunID
	StartedAt    time.Time
	Duration     time.Duration
	Subjects     int
	GridDims     [3]int
	TestedVoxels int
	Alpha        float64

	FixedEffect float64

	SignificantRaw  int
	SignificantFDR  int
	SignificantPerm int

	PermutationsDone int
	NullSummary      *stats.NullSummary
}

// Markdown renders the summary as a Markdown document.
func Markdown(s Summary) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Lesion-symptom mapping run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "Started %s, finished in %s.\n\n", s.StartedAt.Format(time.RFC3339), s.Duration.Round(time.Second))

	b.WriteString("## Cohort\n\n")
	fmt.Fprintf(&b, "- Subjects: %d\n", s.Subjects)
	fmt.Fprintf(&b, "- Grid: %dx%dx%d\n", s.GridDims[0], s.GridDims[1], s.GridDims[2])
	fmt.Fprintf(&b, "- Tested voxels: %d\n\n", s.TestedVoxels)

	b.WriteString("## Results\n\n")
	fmt.Fprintf(&b, "- Alpha: %g\n", s.Alpha)
	fmt.Fprintf(&b, "- Fixed effect size (99th percentile): %s\n", formatFloat(s.FixedEffect))
	fmt.Fprintf(&b, "- Voxels with raw p < alpha: %d\n", s.SignificantRaw)
	fmt.Fprintf(&b, "- Voxels with BH-adjusted p < alpha: %d\n", s.SignificantFDR)

	if s.NullSummary != nil {
		fmt.Fprintf(&b, "- Voxels with permutation-corrected p < alpha: %d\n\n", s.SignificantPerm)
		b.WriteString("## Permutation null distribution\n\n")
		ns := s.NullSummary
		fmt.Fprintf(&b, "- Completed permutations: %d\n", s.PermutationsDone)
		fmt.Fprintf(&b, "- Max-t mean: %s, sd: %s\n", formatFloat(ns.Mean), formatFloat(ns.StdDev))
		fmt.Fprintf(&b, "- Max-t range: [%s, %s]\n", formatFloat(ns.Min), formatFloat(ns.Max))
		fmt.Fprintf(&b, "- 95th / 99th percentile: %s / %s\n", formatFloat(ns.Percentile95), formatFloat(ns.Percentile99))
	} else {
		b.WriteString("\nPermutation correction was not enabled for this run.\n")
	}

	return []byte(b.String())
}

// HTML renders the summary as a standalone HTML document.
func HTML(s Summary) []byte {
	md := Markdown(s)

	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse(md)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.CompletePage,
		Title: fmt.Sprintf("VLSM run %s", s.RunID),
	})
	return markdown.Render(doc, renderer)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", v)
}
