package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Tier
	}{
		{"ALTA", TierHigh},
		{"alta", TierHigh},
		{"  Media  ", TierMedium},
		{"BAIXA", TierLow},
		{"irrelevante", TierLow},
		{"", TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseTier(tt.in))
		})
	}
}

func TestParseRecommendation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Recommendation
	}{
		{"PARTICIPAR", RecommendParticipate},
		{"participar", RecommendParticipate},
		{"DESCARTAR", RecommendDiscard},
		{"acompanhar", RecommendWatch},
		{"talvez", RecommendWatch},
		{"", RecommendWatch},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseRecommendation(tt.in))
		})
	}
}

func TestNoticeRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		notice Notice
		want   string
	}{
		{"edital wins", Notice{EditalRef: "PE 12/2026", PortalID: "30123"}, "PE 12/2026"},
		{"portal id fallback", Notice{PortalID: "30123"}, "30123"},
		{"unnumbered", Notice{Object: "medidores"}, "S/N"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.notice.Ref())
		})
	}
}

func TestNoticeIdentified(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Notice{PortalID: "1"}).Identified())
	assert.True(t, (&Notice{EditalRef: "CC 03/2026"}).Identified())
	assert.False(t, (&Notice{Object: "obra"}).Identified())
}

func TestNoticeCityState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		notice Notice
		want   string
	}{
		{"both", Notice{City: "Curitiba", State: "PR"}, "Curitiba/PR"},
		{"city only", Notice{City: "Curitiba"}, "Curitiba"},
		{"neither", Notice{}, ""},
		{"state only", Notice{State: "PR"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.notice.CityState())
		})
	}
}

func TestDownloadOutcomeOK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome DownloadOutcome
		want    bool
	}{
		{"captured", DownloadOutcome{PortalID: "1", Path: "/tmp/a.zip", Available: true}, true},
		{"failed", DownloadOutcome{PortalID: "1", Available: true, Error: "timeout"}, false},
		{"no document", DownloadOutcome{PortalID: "1", Available: false}, false},
		{"available but no file", DownloadOutcome{PortalID: "1", Available: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.outcome.OK())
		})
	}
}

func TestAttachmentBundleMainPDF(t *testing.T) {
	t.Parallel()

	sizes := map[string]int64{
		"/d/small.pdf": 100,
		"/d/big.pdf":   5000,
		"/d/mid.pdf":   900,
	}
	sizeOf := func(p string) int64 { return sizes[p] }

	b := &AttachmentBundle{PDFs: []string{"/d/small.pdf", "/d/big.pdf", "/d/mid.pdf"}}
	assert.Equal(t, "/d/big.pdf", b.MainPDF(sizeOf))

	empty := &AttachmentBundle{}
	assert.Empty(t, empty.MainPDF(sizeOf))

	// Unstattable files count as -1 and never win over a real one.
	odd := &AttachmentBundle{PDFs: []string{"/d/gone.pdf", "/d/small.pdf"}}
	assert.Equal(t, "/d/small.pdf", odd.MainPDF(func(p string) int64 {
		if p == "/d/gone.pdf" {
			return -1
		}
		return sizes[p]
	}))
}
