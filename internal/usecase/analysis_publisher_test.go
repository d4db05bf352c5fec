package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/content"
)

type scriptedGenerator struct {
	texts    []string
	err      error
	attempts []int
}

func (g *scriptedGenerator) Generate(_ context.Context, _ models.Signal, attempt int) (string, error) {
	g.attempts = append(g.attempts, attempt)
	if g.err != nil {
		return "", g.err
	}
	i := attempt - 1
	if i >= len(g.texts) {
		i = len(g.texts) - 1
	}
	return g.texts[i], nil
}

type recordingContentPublisher struct {
	mu   sync.Mutex
	recs []models.PublishedContentRecord
	err  error
}

func (p *recordingContentPublisher) Publish(_ context.Context, rec models.PublishedContentRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.recs = append(p.recs, rec)
	return nil
}

func newPublisher(t *testing.T, gen *scriptedGenerator, pub *recordingContentPublisher, hist *memoryHistory) (*AnalysisPublisher, *content.Guard, *countingMetrics) {
	t.Helper()
	g, err := content.NewGuard(content.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	m := newCountingMetrics()
	p := NewAnalysisPublisher(gen, g, pub, hist, 3, m, nil)
	p.clock = func() time.Time { return t0 }
	return p, g, m
}

const firstTake = "KAITO volume spiked three sigma above its daily mean while price held flat"

func TestAnalysisPublisherPublishesFirstAccepted(t *testing.T) {
	gen := &scriptedGenerator{texts: []string{firstTake}}
	pub := &recordingContentPublisher{}
	hist := &memoryHistory{}
	p, g, m := newPublisher(t, gen, pub, hist)

	dec, err := p.Publish(context.Background(), sig("KAITO", models.KindVolumeAnomaly, 3))
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Accepted || dec.Record == nil {
		t.Fatalf("decision = %+v", dec)
	}
	if len(pub.recs) != 1 || pub.recs[0].Text != firstTake {
		t.Fatalf("published = %+v", pub.recs)
	}
	if len(hist.records) != 1 || len(g.Records()) != 1 {
		t.Fatalf("history=%d guard=%d", len(hist.records), len(g.Records()))
	}
	if m.guard["accepted"] != 1 {
		t.Fatalf("guard metrics = %v", m.guard)
	}
}

func TestAnalysisPublisherRegeneratesOnDuplicate(t *testing.T) {
	gen := &scriptedGenerator{texts: []string{
		firstTake,
		"Distribution risk on SOL as wallets unload into a quiet tape overnight",
	}}
	pub := &recordingContentPublisher{}
	p, g, m := newPublisher(t, gen, pub, &memoryHistory{})
	g.Seed([]models.PublishedContentRecord{{ID: "old", Text: firstTake, Timestamp: t0.Add(-time.Hour)}})

	dec, err := p.Publish(context.Background(), sig("KAITO", models.KindVolumeAnomaly, 3))
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Accepted {
		t.Fatalf("decision = %+v", dec)
	}
	if len(gen.attempts) != 2 || gen.attempts[1] != 2 {
		t.Fatalf("attempts = %v", gen.attempts)
	}
	if m.guard["rejected"] != 1 || m.guard["accepted"] != 1 {
		t.Fatalf("guard metrics = %v", m.guard)
	}
}

func TestAnalysisPublisherGivesUpAfterMaxAttempts(t *testing.T) {
	gen := &scriptedGenerator{texts: []string{firstTake}}
	pub := &recordingContentPublisher{}
	p, g, _ := newPublisher(t, gen, pub, &memoryHistory{})
	g.Seed([]models.PublishedContentRecord{{ID: "old", Text: firstTake, Timestamp: t0.Add(-time.Hour)}})

	dec, err := p.Publish(context.Background(), sig("KAITO", models.KindVolumeAnomaly, 3))
	if !errors.Is(err, ErrNoAcceptableContent) {
		t.Fatalf("err = %v", err)
	}
	if dec.Accepted || dec.Reason != models.ReasonDuplicate {
		t.Fatalf("decision = %+v", dec)
	}
	if len(gen.attempts) != 3 || len(pub.recs) != 0 {
		t.Fatalf("attempts=%v published=%d", gen.attempts, len(pub.recs))
	}
}

func TestAnalysisPublisherErrors(t *testing.T) {
	t.Run("generator", func(t *testing.T) {
		gen := &scriptedGenerator{err: errors.New("upstream 503")}
		p, _, m := newPublisher(t, gen, &recordingContentPublisher{}, &memoryHistory{})
		if _, err := p.Publish(context.Background(), sig("KAITO", models.KindVolumeAnomaly, 3)); err == nil {
			t.Fatal("expected error")
		}
		if len(gen.attempts) != 1 || m.errors["content_generate"] != 1 {
			t.Fatalf("attempts=%v errors=%v", gen.attempts, m.errors)
		}
	})
	t.Run("publisher", func(t *testing.T) {
		hist := &memoryHistory{}
		pub := &recordingContentPublisher{err: errors.New("broker down")}
		p, _, _ := newPublisher(t, &scriptedGenerator{texts: []string{firstTake}}, pub, hist)
		if _, err := p.Publish(context.Background(), sig("KAITO", models.KindVolumeAnomaly, 3)); err == nil {
			t.Fatal("expected error")
		}
		if len(hist.records) != 0 {
			t.Fatal("unpublished text written to history")
		}
	})
}

func TestAnalysisPublisherRestore(t *testing.T) {
	hist := &memoryHistory{records: []models.PublishedContentRecord{
		{ID: "stale", Text: "old news", Timestamp: t0.Add(-48 * time.Hour)},
		{ID: "fresh", Text: firstTake, Timestamp: t0.Add(-2 * time.Hour)},
	}}
	p, g, _ := newPublisher(t, &scriptedGenerator{texts: []string{firstTake}}, &recordingContentPublisher{}, hist)
	n, err := p.Restore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(g.Records()) != 1 || g.Records()[0].ID != "fresh" {
		t.Fatalf("restored %d: %+v", n, g.Records())
	}
}

func TestPublishReportUsesTopSignalPerAsset(t *testing.T) {
	gen := &scriptedGenerator{texts: []string{firstTake}}
	pub := &recordingContentPublisher{}
	p, _, _ := newPublisher(t, gen, pub, &memoryHistory{})

	report := &models.CycleReport{Timestamp: t0, Assets: map[string]*models.AssetOutcome{
		"KAITO": {AssetID: "KAITO", Approved: []models.Signal{
			sig("KAITO", models.KindSmartMoneyAccumulation, 4),
			sig("KAITO", models.KindVolumeAnomaly, 3),
		}},
		"SOL": {AssetID: "SOL"},
	}}
	p.PublishReport(context.Background(), report)
	if len(gen.attempts) != 1 || len(pub.recs) != 1 {
		t.Fatalf("attempts=%v published=%d", gen.attempts, len(pub.recs))
	}
	if pub.recs[0].AssetIDs[0] != "KAITO" {
		t.Fatalf("record assets = %v", pub.recs[0].AssetIDs)
	}
}
