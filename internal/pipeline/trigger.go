package pipeline

import (
	"regexp"
	"strconv"
)

// The portal's notification e-mails carry the bulletin number bracketed in
// the subject ("ConLicitação - Boletim [1234]") and link the bulletin from
// an "Acessar o Boletim" button in the body.
var (
	subjectNumber = regexp.MustCompile(`\[(\d+)\]`)
	bulletinHref  = regexp.MustCompile(`(?i)href="([^"]*(?:boletim|bulletin)[^"]*)"`)
	portalHref    = regexp.MustCompile(`(?i)href="(https?://[^"]*conlicitacao[^"]*)"`)
)

// ExtractBulletinNumber pulls the bulletin number from a trigger e-mail
// subject. Returns 0 when the subject carries none.
func ExtractBulletinNumber(subject string) int {
	m := subjectNumber.FindStringSubmatch(subject)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// ExtractBulletinURL finds the bulletin link in a trigger e-mail body: the
// first href mentioning a bulletin, else the first link into the portal.
// Returns "" when neither matches.
func ExtractBulletinURL(html string) string {
	if m := bulletinHref.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	if m := portalHref.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}
