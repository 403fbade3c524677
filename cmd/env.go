package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/archive"
	"github.com/cwolfbr/indflow/internal/board"
	"github.com/cwolfbr/indflow/internal/browser"
	"github.com/cwolfbr/indflow/internal/notify"
	"github.com/cwolfbr/indflow/internal/ocr"
	"github.com/cwolfbr/indflow/internal/pipeline"
	"github.com/cwolfbr/indflow/internal/portal"
	"github.com/cwolfbr/indflow/internal/store"
	"github.com/cwolfbr/indflow/internal/triage"
	"github.com/cwolfbr/indflow/pkg/anthropic"
	"github.com/cwolfbr/indflow/pkg/evolution"
	"github.com/cwolfbr/indflow/pkg/notion"
)

// runEnv bundles the store and pipeline handles the run commands share.
type runEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases held resources.
func (e *runEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initPipeline wires the full bulletin pipeline for mode. The browser is not
// started here; each run gets a fresh session from the portal factory.
func initPipeline(ctx context.Context, mode string) (*runEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	if err := cfg.Downloads.Ensure(); err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	catalog, err := triage.LoadCatalog(cfg.Triage.CatalogPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var classifier triage.Classifier
	if cfg.Triage.Mode == "keywords" {
		classifier = triage.NewKeyword(catalog)
		zap.L().Info("triage in keyword mode, llm disabled")
	} else {
		classifier = triage.NewLLM(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic, catalog)
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var notifier pipeline.Notifier
	if cfg.Evolution.Enabled() {
		client := evolution.NewClient(cfg.Evolution.BaseURL, cfg.Evolution.Key, cfg.Evolution.Instance,
			evolution.WithRateLimit(cfg.Evolution.RatePerSecond))
		notifier = notify.New(client, cfg.Evolution)
	} else {
		zap.L().Warn("evolution api not configured, whatsapp delivery disabled")
	}

	var archiver pipeline.Archiver
	if cfg.Archive.Enabled() {
		archiver = archive.New(cfg.Archive)
		zap.L().Info("ftp archive mirror enabled", zap.String("host", cfg.Archive.Host))
	}

	var boardSync pipeline.Board
	if cfg.Notion.Enabled() {
		boardSync = board.New(notion.NewClient(cfg.Notion.Token), cfg.Notion.BoardDB, cfg.Portal.BaseURL)
		zap.L().Info("notion board sync enabled")
	}

	p := pipeline.New(cfg, newPortal, classifier, extractor, st, notifier, archiver, boardSync)

	return &runEnv{Store: st, Pipeline: p}, nil
}

// newPortal starts a browser session and binds the portal flows to it. The
// returned closer tears the session down and may be called more than once.
func newPortal(ctx context.Context) (pipeline.Portal, func(), error) {
	delayMin, delayMax := cfg.Portal.DelayRange()
	session := browser.NewSession(browser.Options{
		Headless:      cfg.Portal.Headless,
		NavTimeout:    cfg.Portal.NavTimeout(),
		ActionTimeout: cfg.Portal.ActionTimeout(),
		DelayMin:      delayMin,
		DelayMax:      delayMax,
	})
	if err := session.Start(ctx); err != nil {
		return nil, nil, err
	}
	return portal.NewClient(session, cfg.Portal, cfg.Downloads), session.Close, nil
}
