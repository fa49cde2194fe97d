package server

import (
	"time"

	"github.com/local/bookletreorder/internal/batch"
	"github.com/local/bookletreorder/internal/export"
)

type mappingView struct {
	ScanPosition int `json:"scan_position"`
	TargetPage   int `json:"target_page"`
}

type entryView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Size         int64         `json:"size"`
	SizeMB       float64       `json:"size_mb"`
	TotalPages   int           `json:"total_pages"`
	Valid        bool          `json:"valid"`
	Status       batch.Status  `json:"status"`
	Error        string        `json:"error,omitempty"`
	DownloadName string        `json:"download_name,omitempty"`
	AddedAt      time.Time     `json:"added_at"`
	SettledAt    *time.Time    `json:"settled_at,omitempty"`
	Mappings     []mappingView `json:"mappings,omitempty"`
}

type queueView struct {
	Entries      []entryView          `json:"entries"`
	Counts       map[batch.Status]int `json:"counts"`
	AnyToProcess bool                 `json:"any_to_process"`
	AnyProcessed bool                 `json:"any_processed"`
}

// viewEntry renders one entry. The analysis error takes the error slot for
// invalid entries since they never reach processing.
func viewEntry(e batch.Entry, withMappings bool) entryView {
	v := entryView{
		ID:         e.ID,
		Name:       e.Source.Name,
		Size:       e.Source.Size,
		SizeMB:     e.Source.SizeMB(),
		TotalPages: e.Analysis.TotalPages,
		Valid:      e.Analysis.Valid,
		Status:     e.Status,
		Error:      e.Error,
		AddedAt:    e.AddedAt,
		SettledAt:  e.SettledAt,
	}
	if !e.Analysis.Valid {
		v.Error = e.Analysis.Error
	}
	if e.Status == batch.StatusReady {
		v.DownloadName = export.Name(e.Source.Name)
	}
	if withMappings {
		v.Mappings = make([]mappingView, 0, len(e.Analysis.Mappings))
		for _, m := range e.Analysis.Mappings {
			v.Mappings = append(v.Mappings, mappingView{ScanPosition: m.SourceIndex + 1, TargetPage: m.TargetPage})
		}
	}
	return v
}

func viewQueue(entries []batch.Entry) queueView {
	q := queueView{
		Entries: make([]entryView, 0, len(entries)),
		Counts: map[batch.Status]int{
			batch.StatusIdle:       0,
			batch.StatusProcessing: 0,
			batch.StatusReady:      0,
			batch.StatusFailed:     0,
		},
	}
	for _, e := range entries {
		q.Entries = append(q.Entries, viewEntry(e, false))
		q.Counts[e.Status]++
		if e.Processable() {
			q.AnyToProcess = true
		}
		if e.Status == batch.StatusReady {
			q.AnyProcessed = true
		}
	}
	return q
}
