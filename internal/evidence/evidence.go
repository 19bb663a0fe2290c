// Package evidence renders ranked retrieval results into a
// human-readable evidence block for the answer layer.
package evidence

import (
	"fmt"
	"strings"

	"github.com/policybot-ai/policybot/internal/domain"
)

const (
	// previewLength bounds the passage text shown per item.
	previewLength = 300

	// blockSeparator divides per-item blocks.
	blockSeparator = "\n--------------------------------\n"
)

// Metadata fallbacks. Every field access is defensive: a missing or
// empty key renders the default instead of failing.
const (
	unknownSource = "Unknown Source"
	notAvailable  = "N/A"
)

// Format renders items into a single evidence string. It never fails:
// items with nil or empty metadata render with defaults.
func Format(items []domain.RetrievedItem) string {
	if len(items) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(items))
	for i, item := range items {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%d] %s (page %s)\n", i+1, item.Meta("source", unknownSource), item.Meta("page", notAvailable))
		fmt.Fprintf(&sb, "Title: %s | Company: %s | Created: %s\n",
			item.Meta("title", notAvailable),
			item.Meta("company", notAvailable),
			item.Meta("creationdate", notAvailable),
		)
		sb.WriteString(preview(item.Text))
		blocks = append(blocks, sb.String())
	}

	return strings.Join(blocks, blockSeparator)
}

// preview collapses line breaks to single spaces and truncates the text
// to a bounded length.
func preview(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")

	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
