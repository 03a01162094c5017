package chat

import (
	"testing"

	"github.com/R-koma/calendar-chat/internal/model"
)

func TestFormatTimeJST(t *testing.T) {
	tests := []struct {
		ts   string
		want string
	}{
		// 15:00 UTC is 00:00 next day in JST.
		{"2025-04-01T15:00:00Z", "00:00"},
		{"2025-04-01T05:30:00Z", "14:30"},
		// Zone-less timestamps are read as UTC.
		{"2025-04-01T05:30:00", "14:30"},
		{"2025-04-01T05:30:00.123456", "14:30"},
		{"not a date", "Invalid date"},
		{"", "Invalid date"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.ts); got != tt.want {
			t.Errorf("FormatTime(%q) = %q, want %q", tt.ts, got, tt.want)
		}
	}
}

func TestFormatDateJST(t *testing.T) {
	tests := []struct {
		ts   string
		want string
	}{
		// The JST shift can move the calendar date.
		{"2025-03-31T15:00:00Z", "04/01"},
		{"2025-12-31T14:59:59Z", "12/31"},
		{"2025-12-31T15:00:00Z", "01/01"},
		{"garbage", "Invalid date"},
	}
	for _, tt := range tests {
		if got := FormatDate(tt.ts); got != tt.want {
			t.Errorf("FormatDate(%q) = %q, want %q", tt.ts, got, tt.want)
		}
	}
}

func TestGroupByDay(t *testing.T) {
	msgs := []model.Message{
		{ID: "a", Timestamp: "2025-04-01T01:00:00Z"},
		{ID: "b", Timestamp: "2025-04-01T02:00:00Z"},
		// 15:00 UTC rolls into April 2 in JST.
		{ID: "c", Timestamp: "2025-04-01T15:00:00Z"},
		{ID: "d", Timestamp: "broken"},
		{ID: "e", Timestamp: "2025-04-02T16:00:00Z"},
	}

	groups := GroupByDay(msgs)
	if len(groups) != 4 {
		t.Fatalf("groups = %d, want 4", len(groups))
	}

	wantDates := []string{"04/01", "04/02", "Invalid date", "04/03"}
	wantSizes := []int{2, 1, 1, 1}
	for i := range groups {
		if groups[i].Date != wantDates[i] {
			t.Errorf("group %d date = %q, want %q", i, groups[i].Date, wantDates[i])
		}
		if len(groups[i].Messages) != wantSizes[i] {
			t.Errorf("group %d size = %d, want %d", i, len(groups[i].Messages), wantSizes[i])
		}
	}

	// Order within and across groups follows the input, never re-sorted.
	if groups[0].Messages[0].ID != "a" || groups[0].Messages[1].ID != "b" {
		t.Errorf("first group order = %v", groups[0].Messages)
	}
}

func TestGroupByDayKeepsYearsApart(t *testing.T) {
	msgs := []model.Message{
		{ID: "a", Timestamp: "2024-04-01T01:00:00Z"},
		{ID: "b", Timestamp: "2025-04-01T01:00:00Z"},
	}
	groups := GroupByDay(msgs)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 (same month/day, different years)", len(groups))
	}
}

func TestGroupByDayEmpty(t *testing.T) {
	if groups := GroupByDay(nil); len(groups) != 0 {
		t.Fatalf("groups = %v, want none", groups)
	}
}
