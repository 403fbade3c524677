// Package board publishes high-tier notices to the Notion database the
// commercial team works from.
//
// Sync is best-effort: a board failure is recorded in the run result but
// never aborts a bulletin run.
package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/model"
	"github.com/cwolfbr/indflow/pkg/notion"
)

// refProperty is the rich_text column the board keys pages on. A bulletin
// can resurface a notice the portal already published, so every page carries
// its notice reference for the duplicate check.
const refProperty = "Ref"

// Board writes opportunity pages to a Notion database.
type Board struct {
	client        notion.Client
	dbID          string
	portalBaseURL string
}

// New builds a Board on the given database. portalBaseURL feeds each page's
// deep link back into the portal.
func New(client notion.Client, dbID, portalBaseURL string) *Board {
	return &Board{
		client:        client,
		dbID:          dbID,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
	}
}

// Sync creates one page per high-tier notice not yet on the board and
// returns how many pages it created. Notices below high tier are skipped.
// On partial failure the count still reflects the created pages and the
// error describes the first notice that failed.
func (b *Board) Sync(ctx context.Context, notices []model.Notice) (int, error) {
	created := 0
	var firstErr error
	for i := range notices {
		n := &notices[i]
		if n.Tier != model.TierHigh {
			continue
		}

		ok, err := b.syncOne(ctx, n)
		if err != nil {
			zap.L().Warn("board: sync failed", zap.String("ref", n.Ref()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			created++
		}
	}

	zap.L().Info("board: sync finished", zap.Int("created", created))
	return created, firstErr
}

func (b *Board) syncOne(ctx context.Context, n *model.Notice) (bool, error) {
	exists, err := b.exists(ctx, n.Ref())
	if err != nil {
		return false, err
	}
	if exists {
		zap.L().Debug("board: page already present", zap.String("ref", n.Ref()))
		return false, nil
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(b.dbID),
		},
		Properties: b.pageProperties(n),
	}
	if _, err := b.client.CreatePage(ctx, req); err != nil {
		return false, eris.Wrap(err, fmt.Sprintf("board: create page %s", n.Ref()))
	}

	return true, nil
}

func (b *Board) exists(ctx context.Context, ref string) (bool, error) {
	resp, err := b.client.QueryDatabase(ctx, b.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: refProperty,
			RichText: &notionapi.TextFilterCondition{Equals: ref},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, eris.Wrap(err, fmt.Sprintf("board: check existing %s", ref))
	}
	return len(resp.Results) > 0, nil
}

func (b *Board) pageProperties(n *model.Notice) notionapi.Properties {
	title := n.Object
	if title == "" {
		title = "Sem descrição"
	}

	props := notionapi.Properties{
		"Objeto": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: title}},
			},
		},
		refProperty: richText(n.Ref()),
		"Aderência": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(n.Tier)},
		},
	}

	if n.Organ != "" {
		props["Órgão"] = richText(n.Organ)
	}
	if cs := n.CityState(); cs != "" {
		props["Cidade/UF"] = richText(cs)
	}
	if n.OpeningDate != "" {
		props["Abertura"] = richText(n.OpeningDate)
	}
	if n.Value != "" {
		props["Valor"] = richText(n.Value)
	}
	if n.Modality != "" {
		props["Modalidade"] = richText(n.Modality)
	}
	if n.Recommendation != "" {
		props["Recomendação"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(n.Recommendation)},
		}
	}
	if n.PortalID != "" {
		props["Link"] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  fmt.Sprintf("%s/detalhes_licitacao?id=%s", b.portalBaseURL, n.PortalID),
		}
	}

	return props
}

func richText(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}
