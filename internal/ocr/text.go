package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/cwolfbr/indflow/internal/model"
)

// TruncationMarker is appended wherever document text was cut to fit the
// classifier's input budget.
const TruncationMarker = "\n\n[... TEXTO TRUNCADO ...]"

const sectionSeparator = "\n\n---\n\n"

// BuildText extracts text from every artifact in the bundle and assembles a
// single document for the deep-analysis pass, one section per artifact. Each
// section and the final document are capped at maxChars. Per-artifact
// failures become bundle warnings; an artifact with no readable text is
// simply skipped. The assembled text is stored on the bundle and returned.
func BuildText(ctx context.Context, ex Extractor, bundle *model.AttachmentBundle, maxChars int) string {
	var sections []string

	appendSection := func(path, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		capped, cut := truncate(text, maxChars)
		if cut {
			bundle.Truncated = true
		}
		sections = append(sections, "📄 "+filepath.Base(path)+":\n"+capped)
	}

	pdfs := bundle.PDFs
	if len(pdfs) == 0 && len(bundle.TextFiles) == 0 && bundle.Root != "" {
		// The download produced no recognizable artifacts; try the raw file
		// itself before giving up on the document.
		pdfs = []string{bundle.Root}
	}

	for _, path := range pdfs {
		text, err := ex.ExtractText(ctx, path)
		if err != nil {
			bundle.Warnings = append(bundle.Warnings, err.Error())
			continue
		}
		appendSection(path, text)
	}

	for _, path := range bundle.TextFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			bundle.Warnings = append(bundle.Warnings, "ocr: read text artifact: "+err.Error())
			continue
		}
		appendSection(path, decodeText(raw))
	}

	combined, cut := truncate(strings.Join(sections, sectionSeparator), maxChars)
	if cut {
		bundle.Truncated = true
	}
	bundle.CombinedText = combined

	return combined
}

// decodeText converts a legacy-encoded text artifact to UTF-8. Brazilian
// portals still ship windows-1252 attachments; valid UTF-8 passes through.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	enc, err := htmlindex.Get("windows-1252")
	if err != nil {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}

	return string(decoded)
}

// truncate cuts s to at most max bytes on a rune boundary, appending the
// truncation marker when a cut happened. max <= 0 disables the cap.
func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}

	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}

	return cut + TruncationMarker, true
}
