package model

import "time"

// RunStatus represents the state of a bulletin processing run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// TierCounts tallies notices per adherence tier.
type TierCounts struct {
	High   int `json:"alta"`
	Medium int `json:"media"`
	Low    int `json:"baixa"`
}

// Add increments the counter for the given tier.
func (c *TierCounts) Add(t Tier) {
	switch t {
	case TierHigh:
		c.High++
	case TierMedium:
		c.Medium++
	default:
		c.Low++
	}
}

// Total returns the sum across tiers.
func (c TierCounts) Total() int {
	return c.High + c.Medium + c.Low
}

// RunResult is the aggregate outcome of one pipeline run. Field names keep
// the JSON contract the downstream automation consumes.
type RunResult struct {
	Success        bool       `json:"success"`
	Bulletin       int        `json:"boletim_number,omitempty"`
	TotalNotices   int        `json:"total_licitacoes"`
	Triage         TierCounts `json:"triagem"`
	DocsDownloaded int        `json:"editais_baixados"`
	DocsAnalyzed   int        `json:"editais_analisados"`
	Persisted      int        `json:"salvas_no_banco"`
	ReportSent     bool       `json:"whatsapp_enviado"`
	DocsSent       int        `json:"pdfs_enviados"`
	Archived       int        `json:"arquivos_espelhados,omitempty"`
	BoardSynced    int        `json:"board_sincronizado,omitempty"`
	Errors         []string   `json:"errors"`
	Notices        []Notice   `json:"licitacoes,omitempty"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
}

// AddError appends a non-fatal error message to the result.
func (r *RunResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Run is one persisted pipeline execution.
type Run struct {
	ID        string     `json:"id"`
	Bulletin  int        `json:"bulletin"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StoreStats summarizes persisted notices by tier and recommendation.
type StoreStats struct {
	Total       int `json:"total"`
	High        int `json:"alta"`
	Medium      int `json:"media"`
	Low         int `json:"baixa"`
	Participate int `json:"participar"`
	Watch       int `json:"acompanhar"`
	Discard     int `json:"descartar"`
}
