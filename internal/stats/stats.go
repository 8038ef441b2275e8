// Package stats records per-run generation metrics (latency, attempts,
// completeness, output size) and persists them to ~/.doc2html/stats.json.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arin/doc2html/internal/config"
)

const (
	fileName   = "stats.json"
	maxRecords = 1000
)

// Record is a single instrumented generation.
type Record struct {
	Timestamp  time.Time     `json:"timestamp"`
	Source     string        `json:"source"`
	Format     string        `json:"format,omitempty"` // "markdown", "docx", ...
	Model      string        `json:"model"`
	Attempts   int           `json:"attempts"`
	Complete   bool          `json:"complete"`
	Latency    time.Duration `json:"-"`
	LatencyMs  int64         `json:"latency_ms"`
	Bytes      int           `json:"bytes"`
	Success    bool          `json:"success"`
	Subcommand string        `json:"subcommand,omitempty"` // "generate" or "serve"
}

// Summary is the aggregated stats dashboard.
type Summary struct {
	TotalRuns       int            `json:"total_runs"`
	SuccessRate     float64        `json:"success_rate"`
	CompleteRate    float64        `json:"complete_rate"` // of successful runs
	AvgLatencyMs    int64          `json:"avg_latency_ms"`
	AvgAttempts     float64        `json:"avg_attempts"`
	AvgBytes        int            `json:"avg_bytes"`
	FormatBreakdown map[string]int `json:"format_breakdown"`
	SubcmdBreakdown map[string]int `json:"subcmd_breakdown"`
	TopModels       []ModelCount   `json:"top_models"`
	TodayCount      int            `json:"today_count"`
	ThisWeekCount   int            `json:"this_week_count"`
}

// ModelCount pairs a model with how many runs used it.
type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

var fileMu sync.Mutex

func statsPath() string {
	return filepath.Join(config.Dir(), fileName)
}

// Save appends a new record to the stats file.
func Save(r Record) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	r.Timestamp = time.Now()
	if r.Latency > 0 {
		r.LatencyMs = r.Latency.Milliseconds()
	}

	records, _ := loadAll()
	records = append(records, r)
	if len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}

	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statsPath(), data, 0o600)
}

// LoadAll returns all stored records.
func LoadAll() ([]Record, error) {
	return loadAll()
}

func loadAll() ([]Record, error) {
	data, err := os.ReadFile(statsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	return records, nil
}

// Summarize computes aggregated stats from all records.
func Summarize() (*Summary, error) {
	records, err := loadAll()
	if err != nil {
		return nil, err
	}
	return summarize(records, time.Now()), nil
}

func summarize(records []Record, now time.Time) *Summary {
	s := &Summary{
		TotalRuns:       len(records),
		FormatBreakdown: map[string]int{},
		SubcmdBreakdown: map[string]int{},
	}
	if len(records) == 0 {
		return s
	}

	var totalLatency int64
	var totalAttempts, totalBytes, successCount, completeCount int
	modelFreq := map[string]int{}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	for _, r := range records {
		if r.Success {
			successCount++
			totalAttempts += r.Attempts
			totalBytes += r.Bytes
			totalLatency += r.LatencyMs
			if r.Complete {
				completeCount++
			}
		}
		if r.Format != "" {
			s.FormatBreakdown[r.Format]++
		}
		if r.Subcommand != "" {
			s.SubcmdBreakdown[r.Subcommand]++
		}
		if r.Model != "" {
			modelFreq[r.Model]++
		}
		if !r.Timestamp.Before(today) {
			s.TodayCount++
		}
		if r.Timestamp.After(weekAgo) {
			s.ThisWeekCount++
		}
	}

	s.SuccessRate = float64(successCount) / float64(len(records)) * 100
	if successCount > 0 {
		s.CompleteRate = float64(completeCount) / float64(successCount) * 100
		s.AvgLatencyMs = totalLatency / int64(successCount)
		s.AvgAttempts = float64(totalAttempts) / float64(successCount)
		s.AvgBytes = totalBytes / successCount
	}

	s.TopModels = topN(modelFreq, 5)
	return s
}

func topN(freq map[string]int, n int) []ModelCount {
	var all []ModelCount
	for model, count := range freq {
		all = append(all, ModelCount{Model: model, Count: count})
	}
	// Selection sort; n is small. Ties break by name so output is stable.
	for i := 0; i < len(all) && i < n; i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].Count > all[maxIdx].Count ||
				(all[j].Count == all[maxIdx].Count && all[j].Model < all[maxIdx].Model) {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}
	if len(all) > n {
		all = all[:n]
	}
	return all
}
