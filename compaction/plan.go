package compaction

import (
	"fmt"
	"strings"
)

// SubtaskState is the progress of a plan subtask.
type SubtaskState string

const (
	SubtaskTodo       SubtaskState = "todo"
	SubtaskInProgress SubtaskState = "in_progress"
	SubtaskDone       SubtaskState = "done"
	SubtaskAbandoned  SubtaskState = "abandoned"
)

// Subtask is one step of a PlanState.
type Subtask struct {
	Name            string       `json:"name" yaml:"name"`
	Description     string       `json:"description,omitempty" yaml:"description"`
	ExpectedOutcome string       `json:"expected_outcome,omitempty" yaml:"expected_outcome"`
	State           SubtaskState `json:"state" yaml:"state"`
}

// PlanState is the agent's current plan as seen by the compaction engine.
type PlanState struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Subtasks    []Subtask `json:"subtasks,omitempty" yaml:"subtasks"`
}

// BuildPlanHint renders the plan as a summarizer hint. A nil plan yields "".
func BuildPlanHint(plan *PlanState) string {
	if plan == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<plan_context>\n")
	fmt.Fprintf(&sb, "The agent is executing the plan %q.", plan.Name)
	if plan.Description != "" {
		sb.WriteString(" ")
		sb.WriteString(plan.Description)
	}
	sb.WriteString("\n")

	if len(plan.Subtasks) > 0 {
		sb.WriteString("Subtasks:\n")
		for i, st := range plan.Subtasks {
			state := st.State
			if state == "" {
				state = SubtaskTodo
			}
			fmt.Fprintf(&sb, "%d. [%s] %s", i+1, state, st.Name)
			if st.Description != "" {
				fmt.Fprintf(&sb, ": %s", st.Description)
			}
			if st.ExpectedOutcome != "" && (state == SubtaskTodo || state == SubtaskInProgress) {
				fmt.Fprintf(&sb, " (expected outcome: %s)", st.ExpectedOutcome)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("Keep every detail that subtasks marked todo or in_progress still need. ")
	sb.WriteString("Details only relevant to done or abandoned subtasks can be condensed.\n")
	sb.WriteString("</plan_context>")
	return sb.String()
}
