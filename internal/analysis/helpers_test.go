package analysis

import (
	"context"
	"sync"

	"github.com/irfndi/coinsight-go/internal/models"
)

var (
	btc = models.AssetDescriptor{Symbol: "BTCUSDT", DisplayName: "Bitcoin", IconRef: "btc"}
	eth = models.AssetDescriptor{Symbol: "ETHUSDT", DisplayName: "Ethereum", IconRef: "eth"}
	sol = models.AssetDescriptor{Symbol: "SOLUSDT", DisplayName: "Solana", IconRef: "sol"}
)

func paramsFor(asset models.AssetDescriptor, g models.Granularity) models.AnalysisParameters {
	a := asset
	return models.AnalysisParameters{Asset: &a, Granularity: g}
}

func instantPacer(ctx context.Context, _ int) error {
	return ctx.Err()
}

// gatedPacer blocks every stage until release is closed.
func gatedPacer(release <-chan struct{}) Pacer {
	return func(ctx context.Context, _ int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.snapshot() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestSequencer(opts ...SequencerOption) *Sequencer {
	builder := NewSynthesizer(NewSeededRandomProvider(nil, 1, 2))
	return NewSequencer(builder, append([]SequencerOption{WithPacer(instantPacer)}, opts...)...)
}
