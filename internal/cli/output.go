package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"eventcertificates/internal/domain"
	"eventcertificates/internal/scheduler"
)

var bold = color.New(color.Bold)

func okMark() string   { return color.GreenString("✓") }
func failMark() string { return color.RedString("✗") }
func warnMark() string { return color.YellowString("!") }

// printStepResult writes a step summary followed by one line per participant.
func printStepResult(w io.Writer, step string, res *domain.StepResult) {
	if res == nil {
		return
	}
	if res.NotFound() {
		fmt.Fprintf(w, "%s %s %s: %s\n", warnMark(), step, res.EventID, res.Message)
		return
	}
	mark := okMark()
	if !res.Success || res.Failed > 0 {
		mark = failMark()
	}
	fmt.Fprintf(w, "%s %s %s: %d total, %d successful, %d failed\n",
		mark, bold.Sprint(step), res.EventID, res.Total, res.Successful, res.Failed)
	if res.Message != "" && res.Status != domain.StatusCompleted {
		fmt.Fprintf(w, "  %s\n", res.Message)
	}
	for _, o := range res.Results {
		if o.Success {
			fmt.Fprintf(w, "  %s %s %s\n", okMark(), o.ParticipantID, o.CertificateURL)
			continue
		}
		fmt.Fprintf(w, "  %s %s %s\n", failMark(), o.ParticipantID, o.Message)
	}
}

// printSummary writes a trigger summary.
func printSummary(w io.Writer, s *scheduler.TriggerSummary) {
	if s == nil {
		return
	}
	if s.Skipped {
		fmt.Fprintf(w, "%s %s skipped: a run is already in progress\n", warnMark(), s.Phase)
		return
	}
	mark := okMark()
	if s.Failed > 0 || len(s.Errors) > 0 {
		mark = failMark()
	}
	fmt.Fprintf(w, "%s %s: %d events (%d not found), %d total, %d successful, %d failed\n",
		mark, bold.Sprint(s.Phase), s.Events, s.NotFound, s.Total, s.Successful, s.Failed)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  %s %s\n", failMark(), e)
	}
}
