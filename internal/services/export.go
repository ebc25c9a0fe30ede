package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
)

// ExportJournalCSV renders journal records into a long-format CSV for
// operator download. Answers are flattened to one JSON cell per record.
func ExportJournalCSV(subs []Submission) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"id", "student_name", "phone_suffix", "form_id", "subject", "series", "status", "submitted_at", "processed_at", "answers"})
	for _, sub := range subs {
		answers := ""
		if len(sub.Answers) > 0 {
			b, err := json.Marshal(sub.Answers)
			if err != nil {
				return nil, err
			}
			answers = string(b)
		}
		rec := []string{
			strconv.Itoa(sub.ID),
			sub.StudentName,
			sub.PhoneSuffix,
			sub.FormID,
			sub.Subject,
			sub.Series,
			sub.Status,
			sub.SubmittedAt,
			sub.ProcessedAt,
			answers,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
