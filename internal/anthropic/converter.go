// Package anthropic converts agentctx messages to Anthropic SDK parameters.
package anthropic

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/youssefsiam38/agentctx/types"
)

// ConvertToAnthropicMessages converts agentctx messages to Anthropic message parameters
func ConvertToAnthropicMessages(messages []*types.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		// Skip system messages (handled separately)
		if msg.Role == types.RoleSystem {
			continue
		}

		contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			contentBlocks = append(contentBlocks, convertContentBlock(block))
		}
		if len(contentBlocks) == 0 {
			continue
		}

		params = append(params, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: contentBlocks,
		})
	}

	return params
}

// convertContentBlock converts a single content block
func convertContentBlock(block types.ContentBlock) anthropic.ContentBlockParamUnion {
	switch block.Type {
	case types.ContentTypeText:
		return anthropic.NewTextBlock(block.Text)

	case types.ContentTypeThinking:
		// Replayed thinking needs a signature we don't keep, so send it as text
		return anthropic.NewTextBlock(block.Text)

	case types.ContentTypeToolUse:
		var input any
		if len(block.ToolInput) > 0 {
			_ = json.Unmarshal(block.ToolInput, &input)
		}
		// API requires a dictionary, not null
		if input == nil {
			input = map[string]any{}
		}
		return anthropic.NewToolUseBlock(block.ToolUseID, input, block.ToolName)

	case types.ContentTypeToolResult:
		return anthropic.NewToolResultBlock(block.ToolResultID, block.ToolContent, block.IsError)

	case types.ContentTypeImage:
		if block.ImageSource != nil {
			switch block.ImageSource.Type {
			case "base64":
				return anthropic.NewImageBlockBase64(block.ImageSource.MediaType, block.ImageSource.Data)
			case "url":
				return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: block.ImageSource.URL})
			}
		}

	case types.ContentTypeDocument:
		if block.DocumentSource != nil {
			return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
				Data: block.DocumentSource.Data,
			})
		}
	}

	// Fallback to empty text block
	return anthropic.NewTextBlock("")
}

// ExtractText concatenates the text blocks of an API response.
func ExtractText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}

	// Retry on rate limits and server errors
	return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
}
