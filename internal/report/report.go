// Package report composes the WhatsApp bulletin report.
package report

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwolfbr/indflow/internal/model"
)

const noDocumentCaveat = "⚠️ _Edital não disponível para download no portal — análise baseada apenas na descrição do card._"

// Composer renders run reports in the WhatsApp message format.
type Composer struct {
	portalBaseURL string

	now func() time.Time // test hook
}

// NewComposer builds a composer. portalBaseURL feeds each record's deep
// link back into the portal.
func NewComposer(portalBaseURL string) *Composer {
	return &Composer{
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		now:           time.Now,
	}
}

// Build renders the report for the relevant notices of one bulletin. High
// tier records get detailed entries, Medium brief ones; total is the full
// bulletin count including the filtered Low records.
func (c *Composer) Build(notices []model.Notice, bulletin, total int) string {
	var b strings.Builder

	if bulletin > 0 {
		fmt.Fprintf(&b, "📋 *Relatório IndFlow — Boletim %d*\n", bulletin)
	} else {
		b.WriteString("📋 *Relatório IndFlow*\n")
	}
	fmt.Fprintf(&b, "📅 %s\n", c.now().Format("02/01/2006"))

	var high, medium []model.Notice
	for _, n := range notices {
		switch n.Tier {
		case model.TierHigh:
			high = append(high, n)
		case model.TierMedium:
			medium = append(medium, n)
		}
	}

	low := 0
	if total > len(notices) {
		low = total - len(notices)
	}

	withDoc, noDoc := 0, 0
	for _, n := range notices {
		if n.DocumentAvailable == nil {
			continue
		}
		if *n.DocumentAvailable {
			withDoc++
		} else {
			noDoc++
		}
	}

	b.WriteString("\n")
	if total > 0 {
		fmt.Fprintf(&b, "📊 *%d/%d licitações relevantes* (de %d no boletim)\n", len(notices), total, total)
	} else {
		fmt.Fprintf(&b, "📊 *%d licitações relevantes*\n", len(notices))
	}
	fmt.Fprintf(&b, "🟢 Alta: %d | 🟡 Média: %d | 🔴 Baixa: %d (filtradas)\n", len(high), len(medium), low)
	if withDoc > 0 || noDoc > 0 {
		fmt.Fprintf(&b, "📄 Documentos: %d baixados | %d indisponíveis no portal\n", withDoc, noDoc)
	}

	if len(high) > 0 {
		b.WriteString("\n🟢 *ALTA ADERÊNCIA*\n")
		for i := range high {
			b.WriteString(c.detailEntry(i+1, &high[i]))
		}
	}

	if len(medium) > 0 {
		b.WriteString("\n🟡 *MÉDIA ADERÊNCIA*\n")
		for i := range medium {
			b.WriteString(briefEntry(i+1, &medium[i]))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func (c *Composer) detailEntry(index int, n *model.Notice) string {
	var b strings.Builder

	title := n.EditalRef
	if title == "" {
		title = "Nº Conlicitação: " + orDefault(n.PortalID, "S/N")
	}
	fmt.Fprintf(&b, "\n*%d. %s*\n", index, title)

	if n.EditalRef != "" && n.PortalID != "" {
		fmt.Fprintf(&b, "🆔 *Nº Conlicitação:* %s\n", n.PortalID)
	}
	if n.PortalID != "" {
		fmt.Fprintf(&b, "🔗 %s/detalhes_licitacao?id=%s\n", c.portalBaseURL, n.PortalID)
	}
	if n.Organ != "" {
		fmt.Fprintf(&b, "📍 %s\n", n.Organ)
	}
	if cs := n.CityState(); cs != "" {
		fmt.Fprintf(&b, "📌 %s\n", cs)
	}
	fmt.Fprintf(&b, "📦 %s\n", truncate(orDefault(n.Object, "Sem descrição"), 150))
	if n.OpeningDate != "" {
		fmt.Fprintf(&b, "📅 Abertura: %s\n", n.OpeningDate)
	}
	if n.Value != "" {
		fmt.Fprintf(&b, "💰 %s\n", n.Value)
	}
	if n.Summary != "" {
		fmt.Fprintf(&b, "📝 _%s_\n", truncate(n.Summary, 200))
	}
	if n.DocumentAvailable != nil && !*n.DocumentAvailable {
		b.WriteString(noDocumentCaveat + "\n")
	}

	rec := n.Recommendation
	if rec == "" {
		rec = model.RecommendWatch
	}
	fmt.Fprintf(&b, "%s *Recomendação: %s*\n", recommendationEmoji(rec), rec)

	return b.String()
}

func briefEntry(index int, n *model.Notice) string {
	head := orDefault(n.EditalRef, "S/N")
	if n.Organ != "" {
		head += " — " + n.Organ
	}
	return fmt.Sprintf("\n%d. %s\n   📦 %s\n", index, head, truncate(n.Object, 100))
}

func recommendationEmoji(r model.Recommendation) string {
	switch r {
	case model.RecommendParticipate:
		return "✅"
	case model.RecommendWatch:
		return "👀"
	case model.RecommendDiscard:
		return "❌"
	default:
		return "❓"
	}
}

// Split breaks a message into parts of at most maxChars runes, cutting only
// on line boundaries. Parts after the first carry a continuation header,
// which is not counted against the limit; stripping the headers and joining
// the parts reproduces the original message. A single line longer than
// maxChars is carried whole.
func Split(msg string, maxChars int) []string {
	if maxChars <= 0 || utf8.RuneCountInString(msg) <= maxChars {
		return []string{msg}
	}

	var parts []string
	var current []string
	count := 0
	for _, line := range strings.Split(msg, "\n") {
		n := utf8.RuneCountInString(line)
		if len(current) > 0 && count+n+1 > maxChars {
			parts = append(parts, strings.Join(current, "\n"))
			current = current[:0]
			count = 0
		}
		if len(current) > 0 {
			count++
		}
		current = append(current, line)
		count += n
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n"))
	}

	for i := 1; i < len(parts); i++ {
		parts[i] = fmt.Sprintf("📋 *Continuação (%d/%d)*\n\n%s", i+1, len(parts), parts[i])
	}
	return parts
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
