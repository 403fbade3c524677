// Package notify delivers run reports and documents over WhatsApp.
package notify

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/config"
	"github.com/cwolfbr/indflow/internal/model"
	"github.com/cwolfbr/indflow/internal/report"
	"github.com/cwolfbr/indflow/pkg/evolution"
)

// Notifier sequences report parts and document attachments to the
// configured recipient.
type Notifier struct {
	client evolution.Client
	cfg    config.EvolutionConfig
}

// New builds a notifier on top of an Evolution API client.
func New(client evolution.Client, cfg config.EvolutionConfig) *Notifier {
	return &Notifier{client: client, cfg: cfg}
}

// SendReport splits the message to the configured size and sends every
// part in order. A failed part does not stop the remaining ones; the bool
// reports whether all parts went through.
func (n *Notifier) SendReport(ctx context.Context, msg string) (bool, []error) {
	parts := report.Split(msg, n.cfg.MaxMessageChars)

	ok := true
	var errs []error
	for i, part := range parts {
		if err := n.client.SendText(ctx, n.cfg.Recipient, part); err != nil {
			ok = false
			errs = append(errs, eris.Wrapf(err, "notify: report part %d/%d", i+1, len(parts)))
			zap.L().Warn("notify: report part failed",
				zap.Int("part", i+1),
				zap.Int("parts", len(parts)),
				zap.Error(err),
			)
		}
	}
	if ok {
		zap.L().Info("notify: report delivered", zap.Int("parts", len(parts)))
	}
	return ok, errs
}

// SendDocuments sends each notice's downloaded document with a deep-link
// caption, skipping notices without a captured file. Returns how many went
// through; per-document failures are collected and the rest still sent.
func (n *Notifier) SendDocuments(ctx context.Context, notices []model.Notice) (int, []error) {
	sent := 0
	var errs []error
	for i := range notices {
		nt := &notices[i]
		if nt.DocumentPath == "" {
			continue
		}
		if err := n.client.SendDocument(ctx, n.cfg.Recipient, nt.DocumentPath, DocumentCaption(nt)); err != nil {
			errs = append(errs, eris.Wrapf(err, "notify: document %s", nt.Ref()))
			zap.L().Warn("notify: document failed",
				zap.String("ref", nt.Ref()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	if sent > 0 {
		zap.L().Info("notify: documents delivered", zap.Int("sent", sent))
	}
	return sent, errs
}

// DocumentCaption renders the attachment caption for one notice.
func DocumentCaption(n *model.Notice) string {
	caption := "📎 Edital " + n.Ref()
	if n.Organ != "" {
		caption += " — " + n.Organ
	}
	return caption
}
