package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval matches the dashboard's refresh cadence.
const DefaultPollInterval = 30 * time.Second

// StatsPoller fetches aggregate counters over plain request/response on a
// fixed interval, independent of the realtime transport. The backend does
// not always push stats proactively, so polling fills the gap. Failures
// are logged and silently retried on the next tick; they never escalate.
type StatsPoller struct {
	url        string
	interval   time.Duration
	client     *http.Client
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewStatsPoller(baseURL string, d *Dispatcher, logger *zap.Logger) *StatsPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsPoller{
		url:        baseURL + "/api/stats/v1",
		interval:   DefaultPollInterval,
		client:     &http.Client{Timeout: 10 * time.Second},
		dispatcher: d,
		logger:     logger,
	}
}

// WithInterval overrides the poll cadence. Zero or negative keeps the default.
func (p *StatsPoller) WithInterval(d time.Duration) *StatsPoller {
	if d > 0 {
		p.interval = d
	}
	return p
}

// Run polls until ctx is canceled. It performs one immediate fetch so the
// UI does not wait a full interval for its first snapshot.
func (p *StatsPoller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *StatsPoller) poll(ctx context.Context) {
	s, err := p.fetch(ctx)
	if err != nil {
		p.logger.Warn("stats poll failed", zap.Error(err))
		return
	}
	p.dispatcher.ApplyStats(s)
}

func (p *StatsPoller) fetch(ctx context.Context) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Stats{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
	}

	// The endpoint replies with the standard response envelope; stats may
	// be nested under data or flat, depending on server version.
	var body struct {
		Data *Stats `json:"data"`
		Stats
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	if body.Data != nil {
		return *body.Data, nil
	}
	return body.Stats, nil
}
