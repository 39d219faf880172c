package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type chanSink struct {
	fakeSink
	statsCh chan Stats
}

func (s *chanSink) StatsUpdated(st Stats) { s.statsCh <- st }

func TestStatsPollerFetchesAndApplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats/v1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"active_models":3,"doc_count":12,"conversations":5}}`))
	}))
	defer srv.Close()

	sink := &chanSink{statsCh: make(chan Stats, 4)}
	d := NewDispatcher(&fakeSender{}, sink, nil)
	p := NewStatsPoller(srv.URL, d, nil).WithInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case got := <-sink.statsCh:
		want := Stats{ActiveModels: 3, DocCount: 12, Conversations: 5}
		if got != want {
			t.Errorf("stats = %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller never applied stats")
	}

	if got := d.Stats(); got.ActiveModels != 3 {
		t.Errorf("cached stats = %+v, want poll result", got)
	}
}

func TestStatsPollerFailureIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &chanSink{statsCh: make(chan Stats, 4)}
	d := NewDispatcher(&fakeSender{}, sink, nil)
	p := NewStatsPoller(srv.URL, d, nil).WithInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	select {
	case st := <-sink.statsCh:
		t.Errorf("unexpected stats applied from failing endpoint: %+v", st)
	default:
	}
	if got := d.Stats(); got != (Stats{}) {
		t.Errorf("cached stats mutated on failure: %+v", got)
	}
}
