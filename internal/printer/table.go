package printer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/slok/autotask/internal/model"
)

// TablePrinter prints autotask information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.AutoTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tMODE\tPROGRESS\tCREATED")

	// Print rows
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			task.ID,
			truncate(task.Title, 40),
			task.Status,
			task.Mode,
			progress(task),
			TimeAgo(task.CreatedAt),
		)
	}

	return nil
}

// PrintTaskDetail prints detailed task status.
func (t *TablePrinter) PrintTaskDetail(d TaskDetail) error {
	task := d.Task
	fmt.Fprintf(t.writer, "ID:         %s\n", task.ID)
	fmt.Fprintf(t.writer, "Title:      %s\n", task.Title)
	fmt.Fprintf(t.writer, "Intent:     %s\n", task.Intent)
	fmt.Fprintf(t.writer, "Status:     %s\n", task.Status)
	if task.Interrupt != model.TaskInterruptNone {
		fmt.Fprintf(t.writer, "Requested:  %s at next step\n", task.Interrupt)
	}
	fmt.Fprintf(t.writer, "Mode:       %s\n", task.Mode)
	fmt.Fprintf(t.writer, "Priority:   %s\n", task.Priority)
	fmt.Fprintf(t.writer, "Progress:   %s\n", progress(task))
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(task.CreatedAt))

	if task.StartedAt != nil {
		fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(*task.StartedAt))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(*task.CompletedAt))
	}
	if task.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", task.Error)
	}

	if d.Plan != nil {
		fmt.Fprintf(t.writer, "\nPlan %s (%s, %s risk)\n", d.Plan.ID, d.Plan.Status, d.Plan.Risk)

		results := map[int]model.StepResult{}
		for _, sr := range task.StepResults {
			results[sr.StepIndex] = sr
		}

		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  #\tSTEP\tACTION\tRISK\tRESULT")
		for _, s := range d.Plan.Steps {
			result := "-"
			if sr, ok := results[s.Index]; ok {
				result = string(sr.Status)
			} else if s.Index == task.CurrentStep && !task.Status.Terminal() {
				result = "current"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", s.Index, s.Name, s.Action, s.Risk, result)
		}
		tw.Flush()
	}

	if a := d.PendingApproval; a != nil {
		fmt.Fprintf(t.writer, "\nWaiting on approval %s (%s, expires %s)\n", a.ID, a.ActionDescription, TimeLeft(a.ExpiresAt))
	}
	if dec := d.PendingDecision; dec != nil {
		fmt.Fprintf(t.writer, "\nWaiting on decision %s: %s (expires %s)\n", dec.ID, dec.Question, TimeLeft(dec.ExpiresAt))
	}

	return nil
}

// PrintClassification prints an intent classification.
func (t *TablePrinter) PrintClassification(c model.IntentClassification) error {
	fmt.Fprintf(t.writer, "ID:          %s\n", c.ID)
	fmt.Fprintf(t.writer, "Intent:      %s\n", c.IntentType)
	fmt.Fprintf(t.writer, "Confidence:  %.2f\n", c.Confidence)
	if c.SuggestedName != "" {
		fmt.Fprintf(t.writer, "Name:        %s\n", c.SuggestedName)
	}
	if len(c.Entities) > 0 {
		fmt.Fprintf(t.writer, "Entities:    %s\n", formatMap(c.Entities))
	}
	for _, alt := range c.Alternatives {
		fmt.Fprintf(t.writer, "Alternative: %s (%.2f)\n", alt.Type, alt.Confidence)
	}
	if c.RequiresClarification {
		fmt.Fprintf(t.writer, "Question:    %s\n", c.ClarificationQuestion)
	}

	return nil
}

// PrintPending prints the pending gates.
func (t *TablePrinter) PrintPending(approvals []model.TaskApproval, decisions []model.TaskDecision) error {
	if len(approvals) == 0 && len(decisions) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "KIND\tID\tTASK\tSTEP\tDETAIL\tEXPIRES")

	// Print rows.
	for _, a := range approvals {
		fmt.Fprintf(tw, "approval\t%s\t%s\t%s\t%s (%s risk, level %d/%d)\t%s\n",
			a.ID, a.TaskID, stepLabel(a.StepIndex), a.ActionDescription, a.Risk,
			a.CurrentLevel+1, len(a.Chain.Levels), TimeLeft(a.ExpiresAt))
	}
	for _, d := range decisions {
		ids := make([]string, 0, len(d.Options))
		for _, o := range d.Options {
			ids = append(ids, o.ID)
		}
		fmt.Fprintf(tw, "decision\t%s\t%s\t%s\t%s [%s]\t%s\n",
			d.ID, d.TaskID, stepLabel(d.StepIndex), d.Question, strings.Join(ids, "|"), TimeLeft(d.ExpiresAt))
	}

	return nil
}

// PrintApproval prints an approval.
func (t *TablePrinter) PrintApproval(a model.TaskApproval) error {
	fmt.Fprintf(t.writer, "Approval:   %s\n", a.ID)
	fmt.Fprintf(t.writer, "Task:       %s (step %s)\n", a.TaskID, stepLabel(a.StepIndex))
	fmt.Fprintf(t.writer, "Status:     %s\n", a.Status)
	if !a.Resolved() {
		fmt.Fprintf(t.writer, "Level:      %d/%d\n", a.CurrentLevel+1, len(a.Chain.Levels))
		fmt.Fprintf(t.writer, "Expires:    %s\n", TimeLeft(a.ExpiresAt))
		return nil
	}
	if a.DecidedBy != "" {
		fmt.Fprintf(t.writer, "Decided by: %s\n", a.DecidedBy)
	}
	if a.DecisionReason != "" {
		fmt.Fprintf(t.writer, "Reason:     %s\n", a.DecisionReason)
	}

	return nil
}

// PrintDecision prints a decision.
func (t *TablePrinter) PrintDecision(d model.TaskDecision) error {
	fmt.Fprintf(t.writer, "Decision:   %s\n", d.ID)
	fmt.Fprintf(t.writer, "Task:       %s (step %d)\n", d.TaskID, d.StepIndex)
	fmt.Fprintf(t.writer, "Question:   %s\n", d.Question)
	fmt.Fprintf(t.writer, "Status:     %s\n", d.Status)
	if d.SelectedOption != "" {
		fmt.Fprintf(t.writer, "Selected:   %s\n", d.SelectedOption)
	}
	if d.DecidedBy != "" {
		fmt.Fprintf(t.writer, "Decided by: %s\n", d.DecidedBy)
	}

	return nil
}

// PrintAudit prints safety audit entries in a table format.
func (t *TablePrinter) PrintAudit(entries []model.SafetyAuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "TIME\tSTEP\tACTION\tOUTCOME\tRISK\tDETAIL")

	// Print rows.
	for _, e := range entries {
		detail := e.Error
		if c, ok := e.FailedCheck(); ok && detail == "" {
			detail = fmt.Sprintf("%s: %s", c.Name, c.Message)
		}
		outcome := string(e.Outcome)
		if e.DryRun {
			outcome += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s (%d)\t%s\n",
			FormatTimestamp(e.CreatedAt), stepLabel(e.StepIndex), e.Action, outcome, e.Risk.Level, e.Risk.Score, detail)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func progress(t model.AutoTask) string {
	return fmt.Sprintf("%d/%d (%.0f%%)", t.CurrentStep, t.TotalSteps, t.Progress*100)
}

func stepLabel(i int) string {
	if i == model.PlanGateStep {
		return "plan"
	}
	return fmt.Sprintf("%d", i)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, ", ")
}
