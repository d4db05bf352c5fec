package content

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketPulse/internal/domain/models"
)

type Config struct {
	Threshold   float64
	Timeframe   time.Duration
	Similarity  string
	ShingleSize int
	MaxRecords  int
}

func DefaultConfig() Config {
	return Config{
		Threshold:   0.85,
		Timeframe:   24 * time.Hour,
		Similarity:  TokenJaccard,
		ShingleSize: 3,
		MaxRecords:  500,
	}
}

// Guard rejects texts too similar to anything published within the timeframe.
// It knows nothing about signals or assets beyond what it stores.
type Guard struct {
	mu      sync.Mutex
	cfg     Config
	sim     SimilarityFunc
	records []models.PublishedContentRecord // oldest first
}

func NewGuard(cfg Config) (*Guard, error) {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Timeframe <= 0 {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	sim, err := NewSimilarity(cfg.Similarity, cfg.ShingleSize)
	if err != nil {
		return nil, err
	}
	return &Guard{cfg: cfg, sim: sim}, nil
}

// Evaluate decides whether text may be published at now. On accept the text
// is appended to history and returned as the decision's Record.
func (g *Guard) Evaluate(text string, assets []string, now time.Time) models.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	d := g.decideLocked(text, now)
	if !d.Accepted {
		return d
	}

	rec := models.PublishedContentRecord{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: now,
		AssetIDs:  append([]string(nil), assets...),
	}
	g.appendLocked(rec)
	d.Record = &rec
	return d
}

// Check is Evaluate without recording anything.
func (g *Guard) Check(text string, now time.Time) models.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decideLocked(text, now)
}

// Seed bulk-loads published history, e.g. after a restart.
// Records are kept in timestamp order and capped at MaxRecords.
func (g *Guard) Seed(records []models.PublishedContentRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.records = append(g.records, records...)
	sort.SliceStable(g.records, func(i, j int) bool {
		return g.records[i].Timestamp.Before(g.records[j].Timestamp)
	})
	g.capLocked()
}

// Records returns a copy of the retained history, oldest first.
func (g *Guard) Records() []models.PublishedContentRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.PublishedContentRecord, len(g.records))
	copy(out, g.records)
	return out
}

func (g *Guard) Timeframe() time.Duration { return g.cfg.Timeframe }

func (g *Guard) decideLocked(text string, now time.Time) models.Decision {
	g.pruneLocked(now)

	if Normalize(text) == "" {
		return models.Decision{Reason: models.ReasonEmpty}
	}

	var (
		best    float64
		matched *models.PublishedContentRecord
	)
	for i := range g.records {
		if s := g.sim(text, g.records[i].Text); s > best || matched == nil {
			best = s
			matched = &g.records[i]
		}
	}

	if matched != nil && best >= g.cfg.Threshold {
		return models.Decision{
			Reason:     models.ReasonDuplicate,
			Similarity: best,
			MatchedID:  matched.ID,
			MatchedAt:  matched.Timestamp,
		}
	}
	return models.Decision{Accepted: true, Similarity: best}
}

// pruneLocked drops records strictly older than the timeframe.
func (g *Guard) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.cfg.Timeframe)
	i := 0
	for i < len(g.records) && g.records[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		g.records = append(g.records[:0], g.records[i:]...)
	}
}

// appendLocked inserts rec after every record not newer than it.
func (g *Guard) appendLocked(rec models.PublishedContentRecord) {
	i := sort.Search(len(g.records), func(i int) bool {
		return g.records[i].Timestamp.After(rec.Timestamp)
	})
	g.records = append(g.records, models.PublishedContentRecord{})
	copy(g.records[i+1:], g.records[i:])
	g.records[i] = rec
	g.capLocked()
}

func (g *Guard) capLocked() {
	if over := len(g.records) - g.cfg.MaxRecords; over > 0 {
		g.records = append(g.records[:0], g.records[over:]...)
	}
}
