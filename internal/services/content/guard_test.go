package content

import (
	"math"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

var now = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

const analysis = "KAITO volume surged 3x while price stayed flat. Smart money quietly accumulating?"

func newGuard(t *testing.T, mod func(*Config)) *Guard {
	t.Helper()
	cfg := DefaultConfig()
	if mod != nil {
		mod(&cfg)
	}
	g, err := NewGuard(cfg)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return g
}

func TestSameTextRejectedImmediately(t *testing.T) {
	g := newGuard(t, nil)

	first := g.Evaluate(analysis, []string{"KAITO"}, now)
	if !first.Accepted || first.Record == nil {
		t.Fatalf("first evaluate = %+v", first)
	}

	second := g.Evaluate(analysis, []string{"KAITO"}, now.Add(time.Second))
	if second.Accepted {
		t.Fatal("duplicate accepted")
	}
	if second.Similarity != 1.0 || second.Reason != models.ReasonDuplicate {
		t.Fatalf("decision = %+v", second)
	}
	if !second.MatchedAt.Equal(now) || second.MatchedID != first.Record.ID {
		t.Fatalf("matched = %s at %v", second.MatchedID, second.MatchedAt)
	}
	if len(g.Records()) != 1 {
		t.Fatalf("rejected text must not be recorded, records = %d", len(g.Records()))
	}
}

func TestNormalizationIgnoresCaseAndPunctuation(t *testing.T) {
	g := newGuard(t, nil)
	g.Evaluate(analysis, nil, now)

	d := g.Evaluate("  kaito VOLUME surged 3x -- while price stayed flat;  smart money quietly accumulating ", nil, now.Add(time.Minute))
	if d.Accepted || d.Similarity != 1 {
		t.Fatalf("decision = %+v", d)
	}
}

func TestUnrelatedTextAccepted(t *testing.T) {
	g := newGuard(t, nil)
	g.Evaluate(analysis, nil, now)

	d := g.Evaluate("ETH gas fees drop to a yearly low as layer two usage climbs", []string{"ETH"}, now.Add(time.Minute))
	if !d.Accepted {
		t.Fatalf("unrelated text rejected: %+v", d)
	}
	if d.Similarity >= 0.85 {
		t.Fatalf("similarity = %v", d.Similarity)
	}
}

func TestHistoryPrunedAfterTimeframe(t *testing.T) {
	g := newGuard(t, nil)
	g.Evaluate(analysis, nil, now)

	if d := g.Evaluate(analysis, nil, now.Add(23*time.Hour)); d.Accepted {
		t.Fatal("duplicate accepted inside timeframe")
	}
	// exactly at the edge the record is not strictly older and still counts
	if d := g.Check(analysis, now.Add(24*time.Hour)); d.Accepted {
		t.Fatal("record on the timeframe edge must still match")
	}
	if d := g.Evaluate(analysis, nil, now.Add(24*time.Hour+time.Second)); !d.Accepted {
		t.Fatalf("text should be acceptable after the timeframe: %+v", d)
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	g := newGuard(t, nil)
	if d := g.Check(analysis, now); !d.Accepted {
		t.Fatalf("check = %+v", d)
	}
	if d := g.Evaluate(analysis, nil, now); !d.Accepted {
		t.Fatal("check must not have recorded the text")
	}
}

func TestEmptyTextRejected(t *testing.T) {
	g := newGuard(t, nil)
	if d := g.Evaluate(" ... ", nil, now); d.Accepted || d.Reason != models.ReasonEmpty {
		t.Fatalf("decision = %+v", d)
	}
}

func TestSeedRestoresHistory(t *testing.T) {
	g := newGuard(t, func(c *Config) { c.MaxRecords = 2 })
	g.Seed([]models.PublishedContentRecord{
		{ID: "c", Text: "third post", Timestamp: now.Add(-1 * time.Hour)},
		{ID: "a", Text: "first post", Timestamp: now.Add(-3 * time.Hour)},
		{ID: "b", Text: analysis, Timestamp: now.Add(-2 * time.Hour)},
	})

	recs := g.Records()
	if len(recs) != 2 || recs[0].ID != "b" || recs[1].ID != "c" {
		t.Fatalf("records = %+v", recs)
	}
	d := g.Evaluate(analysis, nil, now)
	if d.Accepted || d.MatchedID != "b" {
		t.Fatalf("seeded record should block duplicate: %+v", d)
	}
}

func TestShingleSimilarity(t *testing.T) {
	g := newGuard(t, func(c *Config) { c.Similarity = ShingleJaccard; c.ShingleSize = 2 })
	g.Evaluate("volume up price flat", nil, now)

	// same words, different order: token sets match but bigrams do not
	d := g.Evaluate("price flat volume up", nil, now.Add(time.Minute))
	if d.Similarity >= 0.85 {
		t.Fatalf("reordered text should differ under shingles: %+v", d)
	}
	if tok := TokenSetJaccard("volume up price flat", "price flat volume up"); tok != 1 {
		t.Fatalf("token similarity = %v", tok)
	}
}

func TestSimilaritySymmetricAndBounded(t *testing.T) {
	texts := []string{"", "alpha", "alpha beta gamma", "Gamma BETA delta", analysis, "a b c d e f g"}
	for _, name := range []string{TokenJaccard, ShingleJaccard} {
		sim, err := NewSimilarity(name, 3)
		if err != nil {
			t.Fatal(err)
		}
		for _, a := range texts {
			for _, b := range texts {
				ab, ba := sim(a, b), sim(b, a)
				if math.Abs(ab-ba) > 1e-12 {
					t.Fatalf("%s not symmetric for %q/%q: %v vs %v", name, a, b, ab, ba)
				}
				if ab < 0 || ab > 1 {
					t.Fatalf("%s out of range: %v", name, ab)
				}
			}
		}
	}
	if _, err := NewSimilarity("cosine", 3); err == nil {
		t.Fatal("expected unknown similarity error")
	}
}

func TestConcurrentEvaluateRecordsOnce(t *testing.T) {
	g := newGuard(t, nil)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Evaluate(analysis, nil, now).Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("accepted = %d, want exactly 1", accepted)
	}
}
