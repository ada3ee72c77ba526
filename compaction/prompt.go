package compaction

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/youssefsiam38/agentctx/types"
)

// maxFormattedBlockChars caps a single block in the text sent to the summarizer.
const maxFormattedBlockChars = 20000

// ToolRunsSystemPrompt frames the compression of consecutive tool calls.
const ToolRunsSystemPrompt = `You compress the tool-call history of an AI agent. You receive a sequence of tool invocations and their results.

Write a compact record that lets the agent continue its work without the original messages:
- For each distinct tool call: the tool name, the essential arguments, and the outcome.
- Keep identifiers, file paths, URLs, numbers, error messages and any value a later step may need verbatim.
- Merge repeated or failed attempts into one line that states what finally worked.
- Drop formatting noise, raw listings and content that was only inspected and never used.

Do not invent results. Do not add commentary.`

// HistoricalRoundsSystemPrompt frames the summary of a finished conversation round.
const HistoricalRoundsSystemPrompt = `You summarize one finished round of a conversation between a user and an AI agent. A round starts with a user request and ends with the agent's final answer; in between the agent may have called tools.

Write a summary that preserves:
1. The user's request and any constraints or preferences stated.
2. Key decisions, facts and results established while answering.
3. Files, identifiers, commands and values that later rounds may refer to.
4. The final answer given to the user, condensed.

Use short bullet points. Do not add information that was not in the round.`

// LargeMessageSystemPrompt frames the condensation of one oversized message.
const LargeMessageSystemPrompt = `You condense one oversized message from an AI agent's working context, usually a tool result.

Keep every fact the agent is likely to need to finish its current task: identifiers, paths, numbers, error messages, relevant excerpts. Drop boilerplate, repeated lines and content irrelevant to the task. Preserve the structure of the content when it helps (headings, lists, key/value pairs).`

// CurrentRoundSystemPrompt frames the compression of the in-progress round.
const CurrentRoundSystemPrompt = `You compress the tool-call history of the task an AI agent is currently working on. The agent will continue from your summary, so it must stay actionable.

Record, in order:
- What has been attempted and with which tool and arguments.
- What was learned, including exact identifiers, paths and values.
- What failed and why.
- What remains to be done, if it can be inferred.

Be terse. Do not invent results.`

// systemPrompt returns the override when set, otherwise the built-in prompt.
func systemPrompt(override, builtin string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return builtin
}

// BuildSummarizationUserPrompt creates the user message for summarization.
// instructions goes last so that the model reads it right before answering.
func BuildSummarizationUserPrompt(conversationText, instructions string) string {
	var sb strings.Builder
	sb.WriteString("<conversation>\n")
	sb.WriteString(conversationText)
	sb.WriteString("</conversation>")
	if instructions != "" {
		sb.WriteString("\n\n")
		sb.WriteString(instructions)
	}
	return sb.String()
}

// composeInstructions places the plan hint immediately before the final instruction.
func composeInstructions(planHint, final string) string {
	if planHint == "" {
		return final
	}
	return planHint + "\n\n" + final
}

func toolRunsInstruction(planRelated bool) string {
	if planRelated {
		return "Summarize the tool calls above. These calls manage the agent's plan: " +
			"keep only the resulting plan and subtask states, in as few lines as possible."
	}
	return "Summarize the tool calls above following your instructions."
}

func historicalRoundInstruction() string {
	return "Summarize the round above following your instructions."
}

func largeMessageInstruction(maxChars int) string {
	return fmt.Sprintf("Condense the message above. Your answer must not exceed %d characters.", maxChars)
}

func currentRoundInstruction(targetChars int, planRelated bool) string {
	instruction := fmt.Sprintf("Compress the tool calls above into at most %d characters.", targetChars)
	if planRelated {
		instruction += " Calls that only create or update the plan need no more than one short line each."
	}
	return instruction
}

// FormatMessages converts messages to a text format suitable for summarization.
func FormatMessages(messages []*types.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		content := extractMessageContent(msg)
		if content == "" {
			continue
		}
		sb.WriteString(roleLabel(msg.Role))
		sb.WriteString(":\n")
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func roleLabel(role types.Role) string {
	switch role {
	case types.RoleAssistant:
		return "Assistant"
	case types.RoleSystem:
		return "System"
	default:
		return "User"
	}
}

// extractMessageContent extracts readable text content from a message.
func extractMessageContent(msg *types.Message) string {
	var parts []string

	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText:
			if block.Text != "" {
				parts = append(parts, truncateRunes(block.Text, maxFormattedBlockChars))
			}
		case types.ContentTypeThinking:
			if block.Text != "" {
				parts = append(parts, fmt.Sprintf("[Thinking: %s]", truncateRunes(block.Text, maxFormattedBlockChars)))
			}
		case types.ContentTypeToolUse:
			parts = append(parts, fmt.Sprintf("[Tool: %s, Input: %s]",
				block.ToolName, truncateRunes(string(block.ToolInput), maxFormattedBlockChars)))
		case types.ContentTypeToolResult:
			label := "Tool Result"
			if block.IsError {
				label = "Tool Error"
			}
			parts = append(parts, fmt.Sprintf("[%s for %s: %s]",
				label, block.ToolResultID, truncateRunes(block.ToolContent, maxFormattedBlockChars)))
		case types.ContentTypeImage:
			parts = append(parts, "[Image]")
		case types.ContentTypeDocument:
			parts = append(parts, "[Document]")
		}
	}

	return strings.Join(parts, "\n")
}

// truncateRunes returns the first n characters of s, marking the cut.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "...[truncated]"
}

// previewRunes returns the first n characters of s without any marker.
func previewRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
