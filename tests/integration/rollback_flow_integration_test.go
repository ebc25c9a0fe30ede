//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("FORMTRACK_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

func apiKey() string {
	if v := os.Getenv("FORMTRACK_TEST_API_KEY"); v != "" {
		return v
	}
	return "dev-key"
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", apiKey())
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, url, data, err)
		}
	}
	return resp.StatusCode
}

// Drives a same-day ingest → score → rollback cycle against a running server.
func TestRollbackFlowIntegration(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()

	student := fmt.Sprintf("integration-%d", time.Now().UnixNano())
	target := map[string]any{
		"student_name": student,
		"phone_suffix": "1234",
		"subject":      "english",
		"series":       "intensive-a",
	}

	submit := func(answer string) int {
		var resp struct {
			ID int `json:"id"`
		}
		code := doJSON(t, client, http.MethodPost, base+"/submit", map[string]any{
			"student_name": student,
			"phone_suffix": "1234",
			"form_id":      "F-integration",
			"subject":      "english",
			"series":       "intensive-a",
			"answers":      map[string]any{"q1": answer},
		}, &resp)
		if code != http.StatusCreated {
			t.Fatalf("submit: status %d", code)
		}
		return resp.ID
	}

	id1 := submit("a")
	if id2 := submit("b"); id2 != id1 {
		t.Fatalf("same-day resubmission must reuse id %d, got %d", id1, id2)
	}

	var snap struct {
		Scores map[string]float64 `json:"scores"`
	}
	if code := doJSON(t, client, http.MethodPost, base+"/api/profiles/snapshot", target, &snap); code != http.StatusOK {
		t.Fatalf("snapshot: status %d", code)
	}
	if snap.Scores["grammar"] != 50.0 {
		t.Fatalf("fresh student must start at baseline, got %v", snap.Scores)
	}

	commit := map[string]any{}
	for k, v := range target {
		commit[k] = v
	}
	commit["scores"] = map[string]float64{"vocabulary": 61, "grammar": 62, "reading": 63, "listening": 64, "writing": 65}
	if code := doJSON(t, client, http.MethodPost, base+"/api/profiles/commit", commit, nil); code != http.StatusOK {
		t.Fatalf("commit failed")
	}

	// cutoff tomorrow: today's snapshot is the newest one strictly before it,
	// so the profile reverts to pre-run state and no journal rows are reset
	recalcReq := map[string]any{}
	for k, v := range target {
		recalcReq[k] = v
	}
	recalcReq["cutoff"] = time.Now().Add(24 * time.Hour).Format("2006-01-02")
	var recalcResp struct {
		ResetCount   int    `json:"reset_count"`
		RestoredDate string `json:"restored_date"`
	}
	if code := doJSON(t, client, http.MethodPost, base+"/api/recalculate", recalcReq, &recalcResp); code != http.StatusOK {
		t.Fatalf("recalculate: status %d", code)
	}
	if recalcResp.RestoredDate == "" {
		t.Fatalf("expected restore to today's snapshot, got baseline revert")
	}
	if recalcResp.ResetCount != 0 {
		t.Fatalf("no records dated after the cutoff, got %d resets", recalcResp.ResetCount)
	}

	var current struct {
		Profile struct {
			Scores map[string]float64 `json:"scores"`
		} `json:"profile"`
		Stored bool `json:"stored"`
	}
	url := fmt.Sprintf("%s/api/profiles/current?student_name=%s&phone_suffix=1234&subject=english&series=intensive-a", base, student)
	if code := doJSON(t, client, http.MethodGet, url, nil, &current); code != http.StatusOK {
		t.Fatalf("get current: failed")
	}
	if !current.Stored || current.Profile.Scores["grammar"] != 50.0 {
		t.Fatalf("profile must be restored to the pre-run snapshot, got %+v", current)
	}

	// cleanup
	doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/api/students/%s/1234", base, student), nil, nil)
}

func TestOperatorRoutesRequireKey(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(http.MethodGet, baseURL()+"/pending-data", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}
}
