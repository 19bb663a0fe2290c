package evidence

import (
	"strings"
	"testing"

	"github.com/policybot-ai/policybot/internal/domain"
)

func TestFormat_Empty(t *testing.T) {
	if got := Format(nil); got != "" {
		t.Errorf("expected empty string for no items, got %q", got)
	}
}

func TestFormat_FullMetadata(t *testing.T) {
	items := []domain.RetrievedItem{{
		ID:   "c1",
		Text: "The accidental death benefit is $50,000.",
		Metadata: map[string]string{
			"source":       "group_policy.pdf",
			"page":         "12",
			"title":        "Group Life Policy",
			"company":      "Acme Insurance",
			"creationdate": "2023-04-01",
		},
	}}

	got := Format(items)
	for _, want := range []string{"group_policy.pdf", "page 12", "Group Life Policy", "Acme Insurance", "2023-04-01", "accidental death benefit"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFormat_DefensiveDefaults(t *testing.T) {
	tests := []struct {
		name string
		item domain.RetrievedItem
	}{
		{"nil metadata", domain.RetrievedItem{ID: "a", Text: "some text"}},
		{"empty metadata", domain.RetrievedItem{ID: "b", Text: "some text", Metadata: map[string]string{}}},
		{"empty values", domain.RetrievedItem{ID: "c", Text: "some text", Metadata: map[string]string{"source": "", "page": "", "title": ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format([]domain.RetrievedItem{tt.item})
			if !strings.Contains(got, "Unknown Source") {
				t.Errorf("expected source default, got:\n%s", got)
			}
			if !strings.Contains(got, "N/A") {
				t.Errorf("expected N/A defaults, got:\n%s", got)
			}
		})
	}
}

func TestFormat_CollapsesLineBreaks(t *testing.T) {
	items := []domain.RetrievedItem{{ID: "a", Text: "line one\nline two\r\nline three"}}

	got := Format(items)
	if strings.Contains(got, "line one\nline two") {
		t.Error("line breaks inside passage text must be collapsed")
	}
	if !strings.Contains(got, "line one line two line three") {
		t.Errorf("expected collapsed text, got:\n%s", got)
	}
}

func TestFormat_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("x", previewLength*2)
	got := Format([]domain.RetrievedItem{{ID: "a", Text: long}})

	if strings.Contains(got, long) {
		t.Error("long text must be truncated")
	}
	if !strings.Contains(got, "...") {
		t.Error("truncated text should end with ellipsis")
	}
}

func TestFormat_SeparatesBlocks(t *testing.T) {
	items := []domain.RetrievedItem{
		{ID: "a", Text: "first passage"},
		{ID: "b", Text: "second passage"},
	}

	got := Format(items)
	if strings.Count(got, blockSeparator) != 1 {
		t.Errorf("expected exactly one separator between two blocks:\n%s", got)
	}
	if !strings.Contains(got, "[1]") || !strings.Contains(got, "[2]") {
		t.Errorf("blocks should be numbered:\n%s", got)
	}
}
