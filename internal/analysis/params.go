// Package analysis runs the staged analysis workflow: parameter state, the
// progress sequencer, signal providers and result synthesis.
package analysis

import (
	"sync"

	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// ParameterState holds the user's selection for the next run. The zero value
// is not usable; call NewParameterState.
type ParameterState struct {
	mu     sync.RWMutex
	params models.AnalysisParameters
}

// NewParameterState starts with no asset, 4h candles and every toggle off.
func NewParameterState() *ParameterState {
	return &ParameterState{
		params: models.AnalysisParameters{Granularity: models.Granularity4h},
	}
}

// Snapshot returns a copy that later setters do not affect.
func (p *ParameterState) Snapshot() models.AnalysisParameters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := p.params
	if p.params.Asset != nil {
		asset := *p.params.Asset
		snap.Asset = &asset
	}
	return snap
}

// SetAsset implements assets.AssetSetter.
func (p *ParameterState) SetAsset(asset models.AssetDescriptor) {
	p.mu.Lock()
	p.params.Asset = &asset
	p.mu.Unlock()
}

// ClearAsset drops the chosen asset.
func (p *ParameterState) ClearAsset() {
	p.mu.Lock()
	p.params.Asset = nil
	p.mu.Unlock()
}

// SetGranularity accepts one of 15m, 1h, 4h, 1d or 1w.
func (p *ParameterState) SetGranularity(value string) error {
	g, err := models.ParseGranularity(value)
	if err != nil {
		return utils.NewFieldValidationError("granularity", err.Error())
	}
	p.mu.Lock()
	p.params.Granularity = g
	p.mu.Unlock()
	return nil
}

func (p *ParameterState) ToggleVolume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params.IncludeVolume = !p.params.IncludeVolume
	return p.params.IncludeVolume
}

func (p *ParameterState) ToggleSentiment() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params.IncludeSentiment = !p.params.IncludeSentiment
	return p.params.IncludeSentiment
}

func (p *ParameterState) ToggleNews() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params.IncludeNews = !p.params.IncludeNews
	return p.params.IncludeNews
}

// SetToggles assigns all three optional inputs at once.
func (p *ParameterState) SetToggles(volume, sentiment, news bool) {
	p.mu.Lock()
	p.params.IncludeVolume = volume
	p.params.IncludeSentiment = sentiment
	p.params.IncludeNews = news
	p.mu.Unlock()
}

// CanStart is false until an asset has been chosen.
func (p *ParameterState) CanStart() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params.Asset != nil
}
