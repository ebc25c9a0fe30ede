package services

import (
	"strings"
	"testing"
)

func TestExportJournalCSV(t *testing.T) {
	data, err := ExportJournalCSV([]Submission{
		{
			ID: 1, StudentName: "Kim", PhoneSuffix: "1234", FormID: "F1",
			Subject: "english", Series: "intensive-a", Status: StatusProcessed,
			SubmittedAt: "2025-03-01T10:00:00+09:00", ProcessedAt: "2025-03-01T11:00:00+09:00",
			Answers: map[string]any{"q1": "a"},
		},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,student_name,phone_suffix,form_id") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Kim") || !strings.Contains(lines[1], `""q1"":""a""`) {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}
