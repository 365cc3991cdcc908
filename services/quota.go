package services

import (
	"context"
	"fmt"
	"time"

	"lead_engine/config"
)

// QuotaCounter counts activity inside a half-open time window [from, to).
type QuotaCounter interface {
	CountLeadsCreated(ctx context.Context, from, to time.Time) (int, error)
	CountOutreachSent(ctx context.Context, from, to time.Time) (int, error)
}

// Limits is the outcome of a quota check. Exceeding a quota is not an error;
// callers read the booleans.
type Limits struct {
	LeadsToday    int  `json:"leads_today"`
	OutreachToday int  `json:"outreach_today"`
	CanIngest     bool `json:"can_ingest"`
	CanOutreach   bool `json:"can_outreach"`
}

// QuotaGate compares today's counts against the configured daily caps.
// Counts are always read fresh from the store.
type QuotaGate struct {
	counter QuotaCounter
	cfg     *config.Holder
	now     func() time.Time
}

func NewQuotaGate(counter QuotaCounter, cfg *config.Holder) *QuotaGate {
	return &QuotaGate{counter: counter, cfg: cfg, now: time.Now}
}

func (g *QuotaGate) CheckLimits(ctx context.Context) (*Limits, error) {
	doc := g.cfg.For(ctx)
	from, to := DayBounds(g.now(), doc.Location())

	leads, err := g.counter.CountLeadsCreated(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}
	outreach, err := g.counter.CountOutreachSent(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count outreach: %w", err)
	}

	return &Limits{
		LeadsToday:    leads,
		OutreachToday: outreach,
		CanIngest:     leads < doc.Engine.MaxLeadsPerDay,
		CanOutreach:   outreach < doc.Engine.MaxOutreachPerDay,
	}, nil
}

// DayBounds returns the calendar day containing t in loc as [start, next start).
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
