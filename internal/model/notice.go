package model

import "strings"

// Tier classifies how well a notice fits the IndFlow product catalog.
type Tier string

const (
	TierHigh   Tier = "ALTA"
	TierMedium Tier = "MEDIA"
	TierLow    Tier = "BAIXA"
)

// ParseTier normalizes a free-form tier string. Unknown values map to
// TierLow so a malformed classifier response never promotes a notice.
func ParseTier(s string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierHigh:
		return TierHigh
	case TierMedium:
		return TierMedium
	default:
		return TierLow
	}
}

// Recommendation is the action call produced by deep analysis.
type Recommendation string

const (
	RecommendParticipate Recommendation = "PARTICIPAR"
	RecommendWatch       Recommendation = "ACOMPANHAR"
	RecommendDiscard     Recommendation = "DESCARTAR"
)

// ParseRecommendation normalizes a free-form recommendation string,
// defaulting to RecommendWatch.
func ParseRecommendation(s string) Recommendation {
	switch Recommendation(strings.ToUpper(strings.TrimSpace(s))) {
	case RecommendParticipate:
		return RecommendParticipate
	case RecommendDiscard:
		return RecommendDiscard
	default:
		return RecommendWatch
	}
}

// Verdict is the fast-pass (triage) classification of a notice.
type Verdict struct {
	Tier     Tier     `json:"aderencia"`
	Reason   string   `json:"motivo"`
	Keywords []string `json:"keywords_match"`
}

// Deadlines groups the date fields reported by deep analysis.
type Deadlines struct {
	Opening   string `json:"abertura"`
	Proposal  string `json:"proposta"`
	Execution string `json:"execucao"`
}

// Analysis is the deep-pass outcome produced from a downloaded document.
type Analysis struct {
	ExecutiveSummary     string         `json:"resumo_executivo"`
	DetailedObject       string         `json:"objeto_detalhado"`
	RelevantItems        []string       `json:"itens_relevantes"`
	TechnicalReqs        []string       `json:"exigencias_tecnicas"`
	RequiredDocs         []string       `json:"documentacao_necessaria"`
	Deadlines            Deadlines      `json:"prazos"`
	EstimatedValue       string         `json:"valor_estimado"`
	Guarantees           string         `json:"garantias"`
	Tier                 Tier           `json:"aderencia"`
	TierReason           string         `json:"justificativa_aderencia"`
	Recommendation       Recommendation `json:"recomendacao"`
	RecommendationReason string         `json:"justificativa_recomendacao"`
	Alerts               []string       `json:"alertas"`
}

// Bulletin identifies one daily bulletin on the portal.
type Bulletin struct {
	Number int    `json:"number"`
	URL    string `json:"url,omitempty"`
}

// Notice is one procurement notice taken from a bulletin, either via the
// structured export or from a rendered listing card.
type Notice struct {
	PortalID    string `json:"numero_conlicitacao,omitempty"`
	EditalRef   string `json:"edital,omitempty"`
	Object      string `json:"objeto"`
	Organ       string `json:"orgao,omitempty"`
	City        string `json:"cidade,omitempty"`
	State       string `json:"uf,omitempty"`
	OpeningDate string `json:"data_abertura,omitempty"`
	Value       string `json:"valor,omitempty"`
	Modality    string `json:"modalidade,omitempty"`
	Status      string `json:"status,omitempty"`
	Keywords    string `json:"palavras_chave,omitempty"`
	Bulletin    int    `json:"numero_boletim,omitempty"`

	Tier           Tier           `json:"aderencia,omitempty"`
	FastVerdict    *Verdict       `json:"triage,omitempty"`
	Analysis       *Analysis      `json:"analise_completa,omitempty"`
	Summary        string         `json:"resumo_ia,omitempty"`
	Recommendation Recommendation `json:"recomendacao,omitempty"`

	// DocumentAvailable is nil until a download was attempted; false means
	// the portal had no document for this notice.
	DocumentAvailable *bool  `json:"edital_disponivel,omitempty"`
	DocumentPath      string `json:"edital_pdf_path,omitempty"`
}

// Ref returns the best human-facing identifier for the notice: the official
// edital reference when present, otherwise the internal portal ID.
func (n *Notice) Ref() string {
	if n.EditalRef != "" {
		return n.EditalRef
	}
	if n.PortalID != "" {
		return n.PortalID
	}
	return "S/N"
}

// Identified reports whether the notice carries any usable identifier.
func (n *Notice) Identified() bool {
	return n.PortalID != "" || n.EditalRef != ""
}

// CityState renders "Cidade/UF" the way the portal displays it.
func (n *Notice) CityState() string {
	if n.City == "" {
		return ""
	}
	if n.State == "" {
		return n.City
	}
	return n.City + "/" + n.State
}

// DownloadOutcome is the per-notice result of a document download attempt.
type DownloadOutcome struct {
	PortalID string `json:"id"`
	Path     string `json:"filepath,omitempty"`
	// Available is false when the portal explicitly offered no document.
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether a file was actually captured.
func (d DownloadOutcome) OK() bool {
	return d.Error == "" && d.Available && d.Path != ""
}

// AttachmentBundle is the expansion of one downloaded document bundle.
type AttachmentBundle struct {
	Root         string   `json:"root"`
	PDFs         []string `json:"pdfs,omitempty"`
	TextFiles    []string `json:"text_files,omitempty"`
	CombinedText string   `json:"-"`
	Truncated    bool     `json:"truncated,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// MainPDF returns the largest PDF in the bundle, usually the notice body.
// Empty when the bundle holds no PDFs; size ties break by slice order.
func (b *AttachmentBundle) MainPDF(size func(string) int64) string {
	var best string
	var bestSize int64 = -1
	for _, p := range b.PDFs {
		if s := size(p); s > bestSize {
			best, bestSize = p, s
		}
	}
	return best
}
