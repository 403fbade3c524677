package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cwolfbr/indflow/internal/model"
	"github.com/cwolfbr/indflow/internal/ocr"
	"github.com/cwolfbr/indflow/internal/store"
	"github.com/cwolfbr/indflow/internal/triage"
)

// --- Portal Mock ---

type mockPortal struct {
	mock.Mock
}

func (m *mockPortal) Login(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockPortal) OpenBulletin(ctx context.Context, b model.Bulletin) (int, error) {
	args := m.Called(ctx, b)
	return args.Int(0), args.Error(1)
}

func (m *mockPortal) ExportListing(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockPortal) CollectNotices(ctx context.Context) ([]model.Notice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Notice), args.Error(1)
}

func (m *mockPortal) FetchBatch(ctx context.Context, portalIDs []string, favorite bool) []model.DownloadOutcome {
	args := m.Called(ctx, portalIDs, favorite)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.DownloadOutcome)
}

// --- Classifier Mock ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Triage(ctx context.Context, n *model.Notice) (model.Verdict, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(model.Verdict), args.Error(1)
}

func (m *mockClassifier) Analyze(ctx context.Context, n *model.Notice, documentText string) (model.Analysis, error) {
	args := m.Called(ctx, n, documentText)
	return args.Get(0).(model.Analysis), args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	args := m.Called(ctx, pdfPath)
	return args.String(0), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveNotice(ctx context.Context, n *model.Notice) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockStore) Exists(ctx context.Context, editalRef, portalID string) (bool, error) {
	args := m.Called(ctx, editalRef, portalID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SaveRun(ctx context.Context, result *model.RunResult) (*model.Run, error) {
	args := m.Called(ctx, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) Stats(ctx context.Context, days int) (*model.StoreStats, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoreStats), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Notifier Mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendReport(ctx context.Context, msg string) (bool, []error) {
	args := m.Called(ctx, msg)
	if args.Get(1) == nil {
		return args.Bool(0), nil
	}
	return args.Bool(0), args.Get(1).([]error)
}

func (m *mockNotifier) SendDocuments(ctx context.Context, notices []model.Notice) (int, []error) {
	args := m.Called(ctx, notices)
	if args.Get(1) == nil {
		return args.Int(0), nil
	}
	return args.Int(0), args.Get(1).([]error)
}

// --- Archiver Mock ---

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Store(ctx context.Context, bulletin int, paths []string) (int, error) {
	args := m.Called(ctx, bulletin, paths)
	return args.Int(0), args.Error(1)
}

// --- Board Mock ---

type mockBoard struct {
	mock.Mock
}

func (m *mockBoard) Sync(ctx context.Context, notices []model.Notice) (int, error) {
	args := m.Called(ctx, notices)
	return args.Int(0), args.Error(1)
}

// --- Ensure interface compliance ---
var (
	_ Portal            = (*mockPortal)(nil)
	_ triage.Classifier = (*mockClassifier)(nil)
	_ ocr.Extractor     = (*mockExtractor)(nil)
	_ store.Store       = (*mockStore)(nil)
	_ Notifier          = (*mockNotifier)(nil)
	_ Archiver          = (*mockArchiver)(nil)
	_ Board             = (*mockBoard)(nil)
)
