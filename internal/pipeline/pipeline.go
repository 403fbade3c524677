// Package pipeline orchestrates one bulletin run end to end: portal
// session, listing, triage, document download and analysis, persistence,
// report delivery and the optional archive and board mirrors.
//
// Stage failures accumulate on the RunResult; only a browser that will not
// start, a failed login or an empty listing abort the run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/config"
	"github.com/cwolfbr/indflow/internal/fetcher"
	"github.com/cwolfbr/indflow/internal/model"
	"github.com/cwolfbr/indflow/internal/ocr"
	"github.com/cwolfbr/indflow/internal/report"
	"github.com/cwolfbr/indflow/internal/resilience"
	"github.com/cwolfbr/indflow/internal/store"
	"github.com/cwolfbr/indflow/internal/triage"
)

// Portal is the authenticated flow surface of one browser session against
// the procurement portal.
type Portal interface {
	Login(ctx context.Context) error
	OpenBulletin(ctx context.Context, b model.Bulletin) (int, error)
	ExportListing(ctx context.Context) (string, error)
	CollectNotices(ctx context.Context) ([]model.Notice, error)
	FetchBatch(ctx context.Context, portalIDs []string, favorite bool) []model.DownloadOutcome
}

// PortalFactory starts a browser session and returns the portal flows bound
// to it plus a closer tearing the session down. The closer must tolerate
// being called more than once.
type PortalFactory func(ctx context.Context) (Portal, func(), error)

// Notifier delivers the run report and the document attachments.
type Notifier interface {
	SendReport(ctx context.Context, msg string) (bool, []error)
	SendDocuments(ctx context.Context, notices []model.Notice) (int, []error)
}

// Archiver mirrors downloaded bundle files to the document archive.
type Archiver interface {
	Store(ctx context.Context, bulletin int, paths []string) (int, error)
}

// Board publishes high-tier notices to the opportunity board.
type Board interface {
	Sync(ctx context.Context, notices []model.Notice) (int, error)
}

// Request selects the bulletin and toggles the optional stages of one run.
// The JSON shape matches the automation webhook that forwards the portal's
// notification e-mails.
type Request struct {
	BulletinNumber int    `json:"boletim_number,omitempty"`
	BulletinURL    string `json:"boletim_url,omitempty"`
	EmailSubject   string `json:"email_subject,omitempty"`
	EmailHTML      string `json:"email_html,omitempty"`
	DownloadDocs   bool   `json:"download_editais"`
	Notify         bool   `json:"send_whatsapp"`
}

// Pipeline coordinates the stages of a bulletin run.
type Pipeline struct {
	cfg        *config.Config
	newPortal  PortalFactory
	classifier triage.Classifier
	extractor  ocr.Extractor
	store      store.Store
	composer   *report.Composer

	notifier Notifier // nil disables the notification stage
	archiver Archiver // nil disables the archive mirror
	board    Board    // nil disables the board sync
}

// New wires a pipeline. notifier, archiver and board may be nil, which
// disables their stages.
func New(
	cfg *config.Config,
	newPortal PortalFactory,
	classifier triage.Classifier,
	extractor ocr.Extractor,
	st store.Store,
	notifier Notifier,
	archiver Archiver,
	board Board,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		newPortal:  newPortal,
		classifier: classifier,
		extractor:  extractor,
		store:      st,
		composer:   report.NewComposer(cfg.Portal.BaseURL),
		notifier:   notifier,
		archiver:   archiver,
		board:      board,
	}
}

// Run executes one bulletin run. The result is never nil: a fatal condition
// (browser start, login, empty listing) surfaces as Success=false with the
// abort reason in Errors; every other failure is recorded and the run
// carries on.
func (p *Pipeline) Run(ctx context.Context, req Request) *model.RunResult {
	start := time.Now()
	result := &model.RunResult{Bulletin: req.BulletinNumber}

	bulletinURL := p.resolveTrigger(req, result)

	log := zap.L().With(zap.Int("bulletin", result.Bulletin))
	log.Info("pipeline: run starting",
		zap.String("url", bulletinURL),
		zap.Bool("download_docs", req.DownloadDocs),
		zap.Bool("notify", req.Notify),
	)

	defer func() {
		result.ElapsedSeconds = time.Since(start).Seconds()
		if _, err := p.store.SaveRun(ctx, result); err != nil {
			log.Warn("pipeline: run history not saved", zap.Error(err))
		}
		log.Info("pipeline: run finished",
			zap.Bool("success", result.Success),
			zap.Int("bulletin", result.Bulletin),
			zap.Int("total", result.TotalNotices),
			zap.Int("alta", result.Triage.High),
			zap.Int("docs_downloaded", result.DocsDownloaded),
			zap.Int("docs_analyzed", result.DocsAnalyzed),
			zap.Int("persisted", result.Persisted),
			zap.Bool("report_sent", result.ReportSent),
			zap.Int("docs_sent", result.DocsSent),
			zap.Int("errors", len(result.Errors)),
			zap.Float64("elapsed_s", result.ElapsedSeconds),
		)
	}()

	// ----- Session and listing -----

	portal, closeSession, err := p.newPortal(ctx)
	if err != nil {
		return abort(result, log, "browser", err)
	}
	defer closeSession()

	if err := p.login(ctx, portal); err != nil {
		return abort(result, log, "login", err)
	}

	opened, err := portal.OpenBulletin(ctx, model.Bulletin{Number: result.Bulletin, URL: bulletinURL})
	if err != nil {
		return abort(result, log, "bulletin", err)
	}
	if opened > 0 && opened != result.Bulletin {
		result.Bulletin = opened
		log.Info("pipeline: bulletin resolved by the portal", zap.Int("bulletin", opened))
	}

	notices := p.obtainNotices(ctx, portal, result)
	if len(notices) == 0 {
		return abort(result, log, "listing", eris.New("pipeline: no records found in bulletin"))
	}
	for i := range notices {
		notices[i].Bulletin = result.Bulletin
	}
	result.TotalNotices = len(notices)

	// ----- Triage -----

	counts, svcErrs := triage.TriageAll(ctx, p.classifier, notices)
	result.Triage = counts
	for _, serr := range svcErrs {
		result.AddError(serr.Error())
	}

	// ----- Documents (the session is still needed here) -----

	var bundles []string
	if req.DownloadDocs {
		bundles = p.processDocuments(ctx, portal, notices, result)
	} else {
		log.Info("pipeline: document downloads disabled for this run")
	}

	// The browser is done; everything below runs without it.
	closeSession()

	// ----- Persist -----

	p.persist(ctx, notices, result)

	// ----- Deliver -----

	if req.Notify && p.notifier != nil {
		p.deliver(ctx, notices, result)
	} else {
		log.Info("pipeline: notification skipped")
	}

	// ----- Mirrors -----

	if p.archiver != nil && len(bundles) > 0 {
		stored, archErr := p.archiver.Store(ctx, result.Bulletin, bundles)
		result.Archived = stored
		if archErr != nil {
			result.AddError(archErr.Error())
		}
	}
	if p.board != nil {
		synced, boardErr := p.board.Sync(ctx, notices)
		result.BoardSynced = synced
		if boardErr != nil {
			result.AddError(boardErr.Error())
		}
	}

	result.Success = true
	result.Notices = notices
	return result
}

// login authenticates with bounded retries. The SPA intermittently drops
// the first login while its bundle is still loading, so every failure is
// retried up to the configured attempt count, with a humanized backoff.
func (p *Pipeline) login(ctx context.Context, portal Portal) error {
	delayMin, _ := p.cfg.Portal.DelayRange()
	return resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    p.cfg.Portal.MaxRetries,
		InitialBackoff: delayMin,
		ShouldRetry:    func(error) bool { return true },
		OnRetry:        resilience.RetryLogger("portal", "login"),
	}, portal.Login)
}

// resolveTrigger fills the bulletin selection from the trigger e-mail when
// the caller did not pass it explicitly. Returns the bulletin URL to
// navigate, which may be empty.
func (p *Pipeline) resolveTrigger(req Request, result *model.RunResult) string {
	if result.Bulletin == 0 && req.EmailSubject != "" {
		if n := ExtractBulletinNumber(req.EmailSubject); n > 0 {
			result.Bulletin = n
			zap.L().Info("pipeline: bulletin number taken from e-mail subject", zap.Int("bulletin", n))
		}
	}
	url := req.BulletinURL
	if url == "" && req.EmailHTML != "" {
		if u := ExtractBulletinURL(req.EmailHTML); u != "" {
			url = u
			zap.L().Info("pipeline: bulletin link taken from e-mail body", zap.String("url", u))
		}
	}
	return url
}

// obtainNotices prefers the structured export and falls back to walking the
// rendered listing. An export failure is recorded but never aborts: the
// walk covers the same records.
func (p *Pipeline) obtainNotices(ctx context.Context, portal Portal, result *model.RunResult) []model.Notice {
	if path, err := portal.ExportListing(ctx); err != nil {
		result.AddError(err.Error())
		zap.L().Warn("pipeline: export failed, walking the listing", zap.Error(err))
	} else {
		notices, parseErr := fetcher.ParseExport(path)
		switch {
		case parseErr != nil:
			result.AddError(parseErr.Error())
			zap.L().Warn("pipeline: export unreadable, walking the listing", zap.Error(parseErr))
		case len(notices) == 0:
			result.AddError("export: workbook has no records")
			zap.L().Warn("pipeline: export empty, walking the listing", zap.String("path", path))
		default:
			zap.L().Info("pipeline: listing obtained from export", zap.Int("records", len(notices)))
			return notices
		}
	}

	notices, err := portal.CollectNotices(ctx)
	if err != nil {
		result.AddError(err.Error())
		zap.L().Error("pipeline: listing walk failed", zap.Error(err))
		return nil
	}
	zap.L().Info("pipeline: listing obtained from page walk", zap.Int("records", len(notices)))
	return notices
}

// processDocuments downloads the attachment bundle of every high-tier
// record, favoriting it on the portal, then expands and deep-classifies
// each captured document. Returns the local bundle paths for the archive
// mirror.
func (p *Pipeline) processDocuments(ctx context.Context, portal Portal, notices []model.Notice, result *model.RunResult) []string {
	// A bulletin can list the same notice more than once; download each
	// portal ID a single time, in listing order.
	byID := make(map[string][]*model.Notice)
	var ids []string
	for i := range notices {
		n := &notices[i]
		if n.Tier != model.TierHigh || n.PortalID == "" {
			continue
		}
		if _, seen := byID[n.PortalID]; !seen {
			ids = append(ids, n.PortalID)
		}
		byID[n.PortalID] = append(byID[n.PortalID], n)
	}
	if len(ids) == 0 {
		zap.L().Info("pipeline: no high-tier records to download")
		return nil
	}

	zap.L().Info("pipeline: downloading documents", zap.Int("records", len(ids)))
	outcomes := portal.FetchBatch(ctx, ids, true)

	var bundles []string
	for _, out := range outcomes {
		targets := byID[out.PortalID]
		switch {
		case out.OK():
			result.DocsDownloaded++
			bundles = append(bundles, out.Path)
			for _, n := range targets {
				n.DocumentAvailable = boolPtr(true)
				n.DocumentPath = out.Path
			}
			p.analyzeDocument(ctx, out.Path, targets, result)
		case out.Error != "":
			result.AddError(fmt.Sprintf("download %s: %s", out.PortalID, out.Error))
			for _, n := range targets {
				n.DocumentAvailable = boolPtr(false)
			}
		default:
			// The portal reports some notices without any document; the
			// fast verdict stands for those.
			for _, n := range targets {
				n.DocumentAvailable = boolPtr(false)
			}
			zap.L().Info("pipeline: record has no document on the portal",
				zap.String("portal_id", out.PortalID))
		}
	}
	return bundles
}

// analyzeDocument expands a downloaded bundle, extracts its text and runs
// the deep pass for every notice sharing the document. The deep verdict
// overwrites the fast tier; the fast verdict stays on the record.
func (p *Pipeline) analyzeDocument(ctx context.Context, path string, targets []*model.Notice, result *model.RunResult) {
	bundle, err := fetcher.ExpandBundle(path)
	if err != nil {
		result.AddError(err.Error())
		zap.L().Warn("pipeline: bundle expansion failed", zap.String("path", path), zap.Error(err))
		return
	}
	for _, w := range bundle.Warnings {
		zap.L().Debug("pipeline: bundle warning", zap.String("warning", w))
	}

	// The notification and the stored record point at the bundle's main
	// document rather than the raw download, which may be an archive.
	if main := bundle.MainPDF(fileSize); main != "" {
		for _, n := range targets {
			n.DocumentPath = main
		}
	}

	text := ocr.BuildText(ctx, p.extractor, bundle, p.cfg.OCR.MaxChars)
	if text == "" {
		zap.L().Warn("pipeline: document yielded no text, keeping fast verdict", zap.String("path", path))
		return
	}

	for _, n := range targets {
		analysis, analyzeErr := p.classifier.Analyze(ctx, n, text)
		if analyzeErr != nil {
			result.AddError(analyzeErr.Error())
			zap.L().Warn("pipeline: deep analysis failed",
				zap.String("ref", n.Ref()), zap.Error(analyzeErr))
			continue
		}
		a := analysis
		n.Analysis = &a
		n.Summary = a.ExecutiveSummary
		n.Recommendation = a.Recommendation
		if a.Tier != "" {
			n.Tier = a.Tier
		}
		result.DocsAnalyzed++
	}
}

// persist saves every notice the store has not seen. A duplicate-check
// failure skips the record rather than risking a double insert.
func (p *Pipeline) persist(ctx context.Context, notices []model.Notice, result *model.RunResult) {
	for i := range notices {
		n := &notices[i]
		dup, err := p.store.Exists(ctx, n.EditalRef, n.PortalID)
		if err != nil {
			result.AddError(err.Error())
			continue
		}
		if dup {
			zap.L().Debug("pipeline: duplicate skipped", zap.String("ref", n.Ref()))
			continue
		}
		if err := p.store.SaveNotice(ctx, n); err != nil {
			result.AddError(err.Error())
			continue
		}
		result.Persisted++
	}
	zap.L().Info("pipeline: notices persisted",
		zap.Int("saved", result.Persisted),
		zap.Int("total", len(notices)),
	)
}

// deliver sends the report covering the relevant (high and medium) records
// followed by the main document of each high-tier record. A report with no
// relevant records is not sent.
func (p *Pipeline) deliver(ctx context.Context, notices []model.Notice, result *model.RunResult) {
	var relevant, high []model.Notice
	for _, n := range notices {
		switch n.Tier {
		case model.TierHigh:
			relevant = append(relevant, n)
			high = append(high, n)
		case model.TierMedium:
			relevant = append(relevant, n)
		}
	}

	if len(relevant) == 0 {
		zap.L().Info("pipeline: no relevant records, report not sent")
	} else {
		msg := p.composer.Build(relevant, result.Bulletin, result.TotalNotices)
		sent, errs := p.notifier.SendReport(ctx, msg)
		result.ReportSent = sent
		for _, serr := range errs {
			result.AddError(serr.Error())
		}
	}

	if len(high) > 0 {
		docs, errs := p.notifier.SendDocuments(ctx, high)
		result.DocsSent = docs
		for _, serr := range errs {
			result.AddError(serr.Error())
		}
	}
}

// abort records a fatal condition and flags the run as failed.
func abort(result *model.RunResult, log *zap.Logger, stage string, err error) *model.RunResult {
	result.AddError(err.Error())
	log.Error("pipeline: run aborted", zap.String("stage", stage), zap.Error(err))
	return result
}

func boolPtr(v bool) *bool { return &v }

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}
