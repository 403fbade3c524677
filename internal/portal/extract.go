package portal

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/cwolfbr/indflow/internal/model"
)

var (
	portalIDPattern = regexp.MustCompile(`^\d{6,}$`)
	// portalIDFooter matches the "Nº ConLicitação: N" footer line; the dots
	// absorb the accented runes so encoding drift on the portal cannot break
	// the match.
	portalIDFooter = regexp.MustCompile(`(?i)N[º°].*Conlicita..o:\s*(\d+)`)
)

// Known classes the SPA has used for the description and the portal ID when
// the labeled-row layout is absent.
var (
	objectFallbackQueries   = []string{`.buMCfY`, `p.card-text`, `.objeto`, `[class*="objeto"]`}
	portalIDFallbackQueries = []string{`.number-cnl + span`, `.number-cnl`, `[class*="cnl"]`}
)

// ParseCard extracts a notice from one rendered card fragment. A fragment
// with neither a description nor a portal ID yields ok=false: those are
// decorative containers matched by the broad card queries, not records.
func ParseCard(fragment string) (model.Notice, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return model.Notice{}, false
	}

	n := model.Notice{
		Object:      labeledValue(doc, "Objeto"),
		Organ:       cleanOrgan(labeledValue(doc, "rgão", "Orgao", "Órgão")),
		EditalRef:   labeledValue(doc, "Edital"),
		OpeningDate: labeledValue(doc, "Prazo", "bertura", "Datas"),
		PortalID:    spanPortalID(doc),
	}

	if n.Object == "" {
		n.Object = fallbackObject(doc)
	}
	if n.PortalID == "" {
		n.PortalID = fallbackPortalID(doc)
	}

	if n.Object == "" && n.PortalID == "" {
		return model.Notice{}, false
	}
	return n, true
}

// labeledValue scans the card's label/value rows (div.d-flex with a
// .bidding-info-title label and .flex-grow-1 value) and returns the value of
// the first row whose label contains any of the given fragments. Label
// fragments are partial on purpose: "rgão" survives both Órgão and its
// mis-encoded renderings.
func labeledValue(doc *goquery.Document, labels ...string) string {
	var value string
	doc.Find(".d-flex").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		title := row.Find(".bidding-info-title").First().Text()
		if title == "" {
			return true
		}
		matched := false
		for _, l := range labels {
			if strings.Contains(title, l) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
		val := row.Find(".flex-grow-1").First()
		if val.Length() == 0 {
			return true
		}
		value = strings.TrimSpace(val.Text())
		return false
	})
	return value
}

// spanPortalID finds the 6+ digit internal ID the card footer renders in a
// bare span, falling back to a regex over the whole fragment text.
func spanPortalID(doc *goquery.Document) string {
	var id string
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if portalIDPattern.MatchString(t) {
			id = t
			return false
		}
		return true
	})
	if id == "" {
		if m := portalIDFooter.FindStringSubmatch(doc.Text()); m != nil {
			id = m[1]
		}
	}
	return id
}

func fallbackObject(doc *goquery.Document) string {
	for _, q := range objectFallbackQueries {
		t := strings.TrimSpace(doc.Find(q).First().Text())
		// Shorter strings are button captions, not descriptions.
		if utf8.RuneCountInString(t) > 10 {
			return t
		}
	}
	return ""
}

func fallbackPortalID(doc *goquery.Document) string {
	for _, q := range portalIDFallbackQueries {
		t := strings.TrimSpace(doc.Find(q).First().Text())
		if portalIDPattern.MatchString(t) {
			return t
		}
	}
	return ""
}

// cleanOrgan strips the "info" tooltip caption the portal appends to the
// organ cell.
func cleanOrgan(organ string) string {
	return strings.TrimSpace(strings.ReplaceAll(organ, "info", ""))
}
