package cmd

import (
	"time"

	"github.com/arin/doc2html/internal/ai"
	"github.com/arin/doc2html/internal/history"
	"github.com/arin/doc2html/internal/stats"
	"github.com/sirupsen/logrus"
)

// runRecord is one generation as written to history and stats.
type runRecord struct {
	Source     string
	Format     string
	Model      string
	Output     string
	Subcommand string
	Result     *ai.Result
	Err        error
	Elapsed    time.Duration // used when Result is nil
}

func (r runRecord) save() {
	entry := history.Entry{
		Source:  r.Source,
		Model:   r.Model,
		Output:  r.Output,
		Success: r.Err == nil,
	}
	rec := stats.Record{
		Source:     r.Source,
		Format:     r.Format,
		Model:      r.Model,
		Latency:    r.Elapsed,
		Success:    r.Err == nil,
		Subcommand: r.Subcommand,
	}
	if r.Result != nil {
		entry.Attempts = r.Result.Attempts
		entry.Complete = r.Result.Complete
		entry.Bytes = len(r.Result.HTML)
		rec.Attempts = r.Result.Attempts
		rec.Complete = r.Result.Complete
		rec.Bytes = len(r.Result.HTML)
		rec.Latency = r.Result.Elapsed
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}

	if err := history.Save(entry); err != nil {
		logrus.WithError(err).Debug("failed to save history")
	}
	if err := stats.Save(rec); err != nil {
		logrus.WithError(err).Debug("failed to save stats")
	}
}
