// Package triage classifies procurement notices against the IndFlow product
// portfolio, either through the LLM service or a keyword catalog.
package triage

import (
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/cwolfbr/indflow/internal/model"
)

// Catalog holds the keyword tables for offline classification. High terms
// are direct product matches; Medium terms mark adjacent sectors where a
// bid is still worth watching.
type Catalog struct {
	High   []string `yaml:"alta"`
	Medium []string `yaml:"media"`
}

// DefaultCatalog returns the built-in IndFlow keyword tables. Matching is
// diacritics-folded, so only the accented canonical spellings are listed.
func DefaultCatalog() Catalog {
	return Catalog{
		High: []string{
			// Medidores de vazão
			"medidor de vazão",
			"medição de vazão",
			"turbina para gases",
			"turbina para líquidos",
			"ultrassônico clamp-on",
			"calha parshall",
			"eletromagnético",
			"hidrômetro",
			"rotâmetro",
			"totalizador de volume",
			// Transmissores de nível
			"transmissor de nível",
			"medição de nível",
			"sonda hidrostática",
			"sensor de nível",
			"radar de nível",
			"nível ultrassônico",
			// Indicadores e controladores
			"indicador de painel",
			"controlador de processo",
			"dosador",
			"feeder",
			"indicador digital",
			"controlador digital",
			"indicador multiparâmetro",
			// Telemetria
			"datalogger",
			"data logger",
			"telemetria",
			"aquisição de dados",
			"comunicação de dados",
			"scada",
			// Sensores
			"sensor ultrassônico",
			"maxbotix",
			// Genéricos do segmento
			"instrumentação industrial",
			"instrumento de medição",
		},
		Medium: []string{
			"automação industrial",
			"saneamento",
			"estação de tratamento",
			"eta",
			"ete",
			"monitoramento de água",
			"controle de processos",
			"tratamento de água",
			"cloração",
			"tubulações industriais",
			"processo industrial",
			"abastecimento de água",
		},
	}
}

// LoadCatalog reads keyword tables from a YAML file, falling back to the
// built-in catalog when no path is configured.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, eris.Wrapf(err, "triage: read catalog %s", path)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalog{}, eris.Wrapf(err, "triage: parse catalog %s", path)
	}
	if len(cat.High) == 0 && len(cat.Medium) == 0 {
		return Catalog{}, eris.Errorf("triage: catalog %s has no keywords", path)
	}
	return cat, nil
}

// Classify scans the object and keyword text for catalog terms. High terms
// win over Medium; no match lands on Low. Matching folds case and accents,
// so "MEDICAO DE VAZAO" still hits "medição de vazão".
func (c Catalog) Classify(object, keywords string) model.Verdict {
	text := fold(object + " " + keywords)

	if matched := matchAny(text, c.High); len(matched) > 0 {
		return model.Verdict{
			Tier:     model.TierHigh,
			Reason:   "Match direto com produtos IndFlow: " + strings.Join(cap3(matched), ", "),
			Keywords: matched,
		}
	}
	if matched := matchAny(text, c.Medium); len(matched) > 0 {
		return model.Verdict{
			Tier:     model.TierMedium,
			Reason:   "Setor adjacente: " + strings.Join(cap3(matched), ", "),
			Keywords: matched,
		}
	}
	return model.Verdict{
		Tier:   model.TierLow,
		Reason: "Sem match com produtos ou setores da IndFlow",
	}
}

// matchAny returns the catalog terms (original spelling) found in the
// already-folded text.
func matchAny(folded string, terms []string) []string {
	var matched []string
	for _, term := range terms {
		if containsTerm(folded, fold(term)) {
			matched = append(matched, term)
		}
	}
	return matched
}

// containsTerm matches short acronyms (ETA, ETE) as whole words only, so
// "eta" never fires inside "completa". Longer terms match as substrings.
func containsTerm(text, term string) bool {
	if utf8.RuneCountInString(term) > 3 {
		return strings.Contains(text, term)
	}
	for _, w := range strings.FieldsFunc(text, isWordBreak) {
		if w == term {
			return true
		}
	}
	return false
}

func isWordBreak(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

func cap3(s []string) []string {
	if len(s) > 3 {
		return s[:3]
	}
	return s
}

// fold lowercases and strips combining marks, mapping "Vazão" and "vazao"
// to the same string.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}
