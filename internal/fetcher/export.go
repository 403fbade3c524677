// Package fetcher turns downloaded portal artifacts into domain values:
// the bulletin XLSX export and the per-notice document bundles.
package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/cwolfbr/indflow/internal/model"
)

// exportColumn maps a Notice field to the header spellings the portal has
// used for it across export revisions.
type exportColumn struct {
	field    string
	variants []string
}

var exportColumns = []exportColumn{
	{"objeto", []string{"objeto", "descrição", "descricao", "description"}},
	{"orgao", []string{"órgão", "orgao"}},
	{"cidade", []string{"cidade", "município", "municipio", "city"}},
	{"uf", []string{"uf", "estado", "state"}},
	{"data_abertura", []string{"data abertura", "abertura", "data", "datas"}},
	{"edital", []string{"edital", "nº edital", "numero edital", "nº"}},
	{"status", []string{"status", "situação", "situacao"}},
	{"palavras_chave", []string{"palavras-chave", "palavras chave", "keywords", "palavra-chave"}},
	{"valor", []string{"valor", "valor estimado", "preço", "preco"}},
	{"modalidade", []string{"modalidade", "tipo"}},
	{"numero_conlicitacao", []string{"nº conlicitação", "conlicitação", "conlicitacao", "id"}},
}

// ParseExport reads the bulletin XLSX export and maps each data row to a
// Notice. Rows without an object description are dropped: the portal pads
// the sheet with banner and spacer rows that carry no notice.
func ParseExport(path string) ([]model.Notice, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.New("export: workbook has no sheets")
	}

	sheet := wb.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("export: sheet is empty")
	}

	columns := mapExportColumns(rowToStrings(sheet.Rows[0]))
	if _, ok := columns["objeto"]; !ok {
		return nil, eris.New("export: header row has no object column")
	}

	var notices []model.Notice
	for _, row := range sheet.Rows[1:] {
		if n, ok := rowToNotice(rowToStrings(row), columns); ok {
			notices = append(notices, n)
		}
	}

	return notices, nil
}

// mapExportColumns resolves each known field to a column index. Exact header
// matches win over substring matches so that e.g. an "id" variant can never
// claim the "cidade" column.
func mapExportColumns(header []string) map[string]int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	columns := make(map[string]int, len(exportColumns))
	for _, col := range exportColumns {
		if i, ok := matchHeader(normalized, col.variants, strings.EqualFold); ok {
			columns[col.field] = i
			continue
		}
		if i, ok := matchHeader(normalized, col.variants, strings.Contains); ok {
			columns[col.field] = i
		}
	}

	return columns
}

func matchHeader(headers, variants []string, match func(header, variant string) bool) (int, bool) {
	for i, h := range headers {
		for _, v := range variants {
			if match(h, v) {
				return i, true
			}
		}
	}
	return 0, false
}

func rowToNotice(cells []string, columns map[string]int) (model.Notice, bool) {
	get := func(field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[idx])
	}

	n := model.Notice{
		PortalID:    get("numero_conlicitacao"),
		EditalRef:   get("edital"),
		Object:      get("objeto"),
		Organ:       get("orgao"),
		City:        get("cidade"),
		State:       get("uf"),
		OpeningDate: get("data_abertura"),
		Value:       get("valor"),
		Modality:    get("modalidade"),
		Status:      get("status"),
		Keywords:    get("palavras_chave"),
	}

	if n.Object == "" {
		return model.Notice{}, false
	}

	return n, true
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
