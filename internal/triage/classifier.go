package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/config"
	"github.com/cwolfbr/indflow/internal/model"
	"github.com/cwolfbr/indflow/internal/resilience"
	"github.com/cwolfbr/indflow/pkg/anthropic"
)

const triageSystemPrompt = `Você é um analista especializado em licitações públicas trabalhando para a **IndFlow**, empresa de instrumentação industrial.

## Catálogo de Produtos IndFlow:
- **Medidores de Vazão**: turbina (gases/líquidos), ultrassônico clamp-on, calha Parshall, eletromagnético (BLIT-EM), hidrômetros, rotâmetros, totalizadores de volume
- **Transmissores de Nível**: sondas hidrostáticas (17mm, 28mm, PTFE), radar (BLIT-R), ultrassônico
- **Indicadores/Controladores**: dosadores (feeder) para painel, indicadores multiparâmetros, indicadores à prova de tempo, série BLIT
- **Telemetria**: dataloggers, aquisição e comunicação de dados
- **Sensores**: MaxBotix (ultrassônicos)

## Sua tarefa:
Analise o OBJETO da licitação e classifique a aderência ao portfólio da IndFlow.

Responda APENAS com um JSON válido:
{
  "aderencia": "ALTA" | "MEDIA" | "BAIXA",
  "motivo": "justificativa breve",
  "keywords_match": ["palavras que casaram"]
}

### Critérios:
- **ALTA**: Objeto menciona diretamente produtos do catálogo IndFlow ou instrumentação industrial/medição
- **MEDIA**: Setor adjacente (saneamento, ETA/ETE, automação industrial, monitoramento de água) onde IndFlow pode participar
- **BAIXA**: Sem relação com instrumentação industrial`

const analysisSystemPrompt = `Você é um analista de licitações experiente trabalhando para a **IndFlow**, fabricante de instrumentação industrial (medidores de vazão, transmissores de nível, indicadores, controladores, telemetria).

Analise o edital da licitação e gere um relatório completo.

Responda APENAS com um JSON válido:
{
  "resumo_executivo": "Resumo do edital em até 200 palavras — pontos principais, o que está sendo licitado",
  "objeto_detalhado": "Descrição detalhada do que está sendo comprado/contratado",
  "itens_relevantes": ["lista de itens/lotes que a IndFlow pode atender"],
  "exigencias_tecnicas": ["exigências técnicas importantes — certificações, normas, especificações"],
  "documentacao_necessaria": ["documentos exigidos para participação"],
  "prazos": {
    "abertura": "data de abertura da sessão",
    "proposta": "prazo para envio de proposta",
    "execucao": "prazo de execução/entrega"
  },
  "valor_estimado": "valor estimado se disponível",
  "garantias": "garantias exigidas se houver",
  "aderencia": "ALTA" | "MEDIA" | "BAIXA",
  "justificativa_aderencia": "Por que esta classificação de aderência",
  "recomendacao": "PARTICIPAR" | "ACOMPANHAR" | "DESCARTAR",
  "justificativa_recomendacao": "Por que esta recomendação",
  "alertas": ["pontos de atenção — prazos apertados, exigências difíceis, etc."]
}`

const analysisUserPrompt = `OBJETO: %s
ÓRGÃO: %s
CIDADE/UF: %s

TEXTO DO EDITAL:
%s`

const (
	triageTemperature   = 0.1
	triageMaxTokens     = 300
	analysisTemperature = 0.2
	analysisMaxTokens   = 2000
)

// Classifier produces the fast verdict and the deep document analysis.
type Classifier interface {
	// Triage classifies a notice by its object text. The verdict is always
	// usable; a non-nil error reports that the service failed and the
	// keyword catalog supplied the verdict instead.
	Triage(ctx context.Context, n *model.Notice) (model.Verdict, error)

	// Analyze produces the full report from the notice and its extracted
	// document text. On error the caller keeps the fast verdict.
	Analyze(ctx context.Context, n *model.Notice, documentText string) (model.Analysis, error)
}

var (
	_ Classifier = (*LLM)(nil)
	_ Classifier = (*Keyword)(nil)
)

// LLM classifies through the Anthropic API. A circuit breaker stops
// hammering a failing service; rejected and failed triage calls fall back
// to the keyword catalog.
type LLM struct {
	client  anthropic.Client
	cfg     config.AnthropicConfig
	catalog Catalog
	breaker *resilience.Breaker
}

// NewLLM builds the service-backed classifier.
func NewLLM(client anthropic.Client, cfg config.AnthropicConfig, catalog Catalog) *LLM {
	return &LLM{
		client:  client,
		cfg:     cfg,
		catalog: catalog,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			OnStateChange: func(from, to resilience.BreakerState) {
				zap.L().Warn("triage: classifier breaker transition",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

func (l *LLM) Triage(ctx context.Context, n *model.Notice) (model.Verdict, error) {
	user := "OBJETO: " + n.Object
	if n.Keywords != "" {
		user += "\nPALAVRAS-CHAVE: " + n.Keywords
	}

	verdict, err := resilience.Guard(ctx, l.breaker, func(ctx context.Context) (model.Verdict, error) {
		resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       l.cfg.TriageModel,
			MaxTokens:   triageMaxTokens,
			System:      anthropic.BuildCachedSystemBlocks(triageSystemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: user}},
			Temperature: temperature(triageTemperature),
		})
		if err != nil {
			return model.Verdict{}, err
		}
		resp.Usage.LogCost(l.cfg.TriageModel, "triage")
		return parseVerdict(extractText(resp))
	})
	if err != nil {
		zap.L().Warn("triage: service failed, keyword fallback applied",
			zap.String("ref", n.Ref()),
			zap.Error(err),
		)
		return l.catalog.Classify(n.Object, n.Keywords), eris.Wrapf(err, "triage: classify %s", n.Ref())
	}

	zap.L().Info("triage: notice classified",
		zap.String("ref", n.Ref()),
		zap.String("tier", string(verdict.Tier)),
	)
	return verdict, nil
}

func (l *LLM) Analyze(ctx context.Context, n *model.Notice, documentText string) (model.Analysis, error) {
	user := fmt.Sprintf(analysisUserPrompt, n.Object, n.Organ, n.CityState(), documentText)

	analysis, err := resilience.Guard(ctx, l.breaker, func(ctx context.Context) (model.Analysis, error) {
		resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       l.cfg.AnalysisModel,
			MaxTokens:   analysisMaxTokens,
			System:      anthropic.BuildCachedSystemBlocks(analysisSystemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: user}},
			Temperature: temperature(analysisTemperature),
		})
		if err != nil {
			return model.Analysis{}, err
		}
		resp.Usage.LogCost(l.cfg.AnalysisModel, "analysis")
		return parseAnalysis(extractText(resp))
	})
	if err != nil {
		return model.Analysis{}, eris.Wrapf(err, "triage: analyze %s", n.Ref())
	}

	zap.L().Info("triage: document analyzed",
		zap.String("ref", n.Ref()),
		zap.String("tier", string(analysis.Tier)),
		zap.String("recommendation", string(analysis.Recommendation)),
	)
	return analysis, nil
}

// Keyword classifies offline with the catalog alone (triage.mode=keywords).
type Keyword struct {
	catalog Catalog
}

// NewKeyword builds the catalog-only classifier.
func NewKeyword(catalog Catalog) *Keyword {
	return &Keyword{catalog: catalog}
}

func (k *Keyword) Triage(_ context.Context, n *model.Notice) (model.Verdict, error) {
	return k.catalog.Classify(n.Object, n.Keywords), nil
}

// Analyze scans the document text with the catalog. There is no narrative
// without the service, so the recommendation stays conservative: watch
// anything the catalog matched, discard the rest.
func (k *Keyword) Analyze(_ context.Context, n *model.Notice, documentText string) (model.Analysis, error) {
	v := k.catalog.Classify(n.Object+" "+documentText, n.Keywords)

	rec := model.RecommendWatch
	if v.Tier == model.TierLow {
		rec = model.RecommendDiscard
	}
	return model.Analysis{
		ExecutiveSummary:     v.Reason,
		DetailedObject:       n.Object,
		RelevantItems:        v.Keywords,
		Tier:                 v.Tier,
		TierReason:           v.Reason,
		Recommendation:       rec,
		RecommendationReason: "Classificação por palavras-chave; leitura manual do edital recomendada",
	}, nil
}

// TriageAll classifies every notice in place, sequentially, attaching the
// verdict and tier to each. Service errors are collected and returned; the
// affected notices still carry keyword verdicts.
func TriageAll(ctx context.Context, c Classifier, notices []model.Notice) (model.TierCounts, []error) {
	var counts model.TierCounts
	var errs []error

	for i := range notices {
		v, err := c.Triage(ctx, &notices[i])
		if err != nil {
			errs = append(errs, err)
		}
		verdict := v
		notices[i].FastVerdict = &verdict
		notices[i].Tier = v.Tier
		counts.Add(v.Tier)
	}

	zap.L().Info("triage: batch classified",
		zap.Int("alta", counts.High),
		zap.Int("media", counts.Medium),
		zap.Int("baixa", counts.Low),
		zap.Int("fallbacks", len(errs)),
	)
	return counts, errs
}

func parseVerdict(text string) (model.Verdict, error) {
	var raw struct {
		Tier     string   `json:"aderencia"`
		Reason   string   `json:"motivo"`
		Keywords []string `json:"keywords_match"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return model.Verdict{}, eris.Wrap(err, "triage: parse verdict")
	}
	return model.Verdict{
		Tier:     model.ParseTier(raw.Tier),
		Reason:   raw.Reason,
		Keywords: raw.Keywords,
	}, nil
}

func parseAnalysis(text string) (model.Analysis, error) {
	var a model.Analysis
	if err := json.Unmarshal([]byte(cleanJSON(text)), &a); err != nil {
		return model.Analysis{}, eris.Wrap(err, "triage: parse analysis")
	}
	a.Tier = model.ParseTier(string(a.Tier))
	a.Recommendation = model.ParseRecommendation(string(a.Recommendation))
	return a, nil
}

// extractText concatenates the text content blocks of a response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func temperature(v float64) *float64 { return &v }
