// Package rank turns a comparison model into a 0-100 score with an
// explainable breakdown.
package rank

import (
	"fmt"
	"math"

	"github.com/mager/cochlea/compare"
)

// Ranker scores a comparison model.
type Ranker interface {
	Rank(model compare.Model) Result
}

// Component is one weighted part of the reference fit.
type Component struct {
	Key          string   `json:"key"`
	Label        string   `json:"label"`
	Weight       float64  `json:"weight"`
	Score        *float64 `json:"score"`
	Contribution float64  `json:"contribution"`
	Closeness    *float64 `json:"closeness"`
	Metrics      int      `json:"metrics"`
}

// Precision records which components qualified for the precision bonus.
type Precision struct {
	Threshold  float64  `json:"threshold"`
	Qualifying []string `json:"qualifying"`
	Points     float64  `json:"points"`
}

// Result is the full ranking of one version.
type Result struct {
	ProfileKey         string      `json:"profileKey,omitempty"`
	PrePenaltyScore    float64     `json:"prePenaltyScore"`
	ReferenceFit       float64     `json:"referenceFit"`
	BaseQuality        *float64    `json:"baseQuality"`
	MixScores          MixScores   `json:"mixScores"`
	PrecisionBonus     float64     `json:"precisionBonus"`
	PrecisionBreakdown Precision   `json:"precisionBreakdown"`
	Penalties          []Penalty   `json:"penalties"`
	Components         []Component `json:"components"`
	Score              float64     `json:"score"`
}

// Component returns the component with key, if present.
func (r Result) Component(key string) (Component, bool) {
	for _, c := range r.Components {
		if c.Key == key {
			return c, true
		}
	}
	return Component{}, false
}

// ComponentDef names a component and its weight.
type ComponentDef struct {
	Key    string
	Label  string
	Weight float64
}

// Options tune the score curves.
type Options struct {
	Components []ComponentDef

	// ClosenessExponent shapes the decay from the median to the band edge.
	ClosenessExponent float64

	PrecisionThreshold     float64
	PrecisionMinComponents int
	PrecisionPoints        float64
	BonusCap               float64

	PenaltyCap float64
	Penalties  PenaltyRules
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		Components: []ComponentDef{
			{Key: compare.Tonal, Label: "Tonal balance", Weight: 0.30},
			{Key: compare.Loudness, Label: "Loudness", Weight: 0.20},
			{Key: compare.Spectral, Label: "Spectrum", Weight: 0.15},
			{Key: compare.Transients, Label: "Transients", Weight: 0.15},
			{Key: compare.Rhythm, Label: "Rhythm", Weight: 0.10},
			{Key: compare.Stereo, Label: "Stereo image", Weight: 0.10},
		},
		ClosenessExponent:      2,
		PrecisionThreshold:     0.95,
		PrecisionMinComponents: 2,
		PrecisionPoints:        1,
		BonusCap:               3,
		PenaltyCap:             45,
		Penalties:              DefaultPenaltyRules(),
	}
}

// Validate checks that component weights sum to 1.
func (o Options) Validate() error {
	if len(o.Components) == 0 {
		return fmt.Errorf("rank: no components")
	}
	var sum float64
	for _, c := range o.Components {
		if c.Weight < 0 {
			return fmt.Errorf("rank: component %s has negative weight", c.Key)
		}
		sum += c.Weight
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("rank: component weights sum to %.4f, want 1", sum)
	}
	if o.BonusCap < 0 || o.PenaltyCap < 0 {
		return fmt.Errorf("rank: caps must not be negative")
	}
	return nil
}

// Engine is the default Ranker.
type Engine struct {
	opts Options
}

// NewEngine builds an Engine after validating opts.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts}, nil
}

// Rank computes the reference fit, bonus, penalties and final score.
//
//	score = clamp(referenceFit + precisionBonus - penalties, 0, 100)
func (e *Engine) Rank(model compare.Model) Result {
	res := Result{
		ProfileKey: model.ProfileKey,
		MixScores:  BaseQuality(model.Technical),
		Components: make([]Component, 0, len(e.opts.Components)),
		Penalties:  []Penalty{},
	}
	res.BaseQuality = res.MixScores.Overall

	var qualifying []string
	for _, def := range e.opts.Components {
		c := Component{Key: def.Key, Label: def.Label, Weight: def.Weight}

		var total float64
		for _, mt := range model.Known(def.Key) {
			cl, ok := Closeness(*mt.Value, mt.Band, e.opts.ClosenessExponent)
			if !ok {
				continue
			}
			total += cl
			c.Metrics++
		}
		if c.Metrics > 0 {
			closeness := total / float64(c.Metrics)
			score := 100 * closeness
			c.Closeness = &closeness
			c.Score = &score
			c.Contribution = def.Weight * score
			if closeness >= e.opts.PrecisionThreshold {
				qualifying = append(qualifying, def.Key)
			}
		}
		res.ReferenceFit += c.Contribution
		res.Components = append(res.Components, c)
	}
	res.PrePenaltyScore = res.ReferenceFit

	res.PrecisionBreakdown = Precision{Threshold: e.opts.PrecisionThreshold, Qualifying: qualifying}
	if len(qualifying) >= e.opts.PrecisionMinComponents {
		bonus := math.Min(e.opts.BonusCap, e.opts.PrecisionPoints*float64(len(qualifying)))
		res.PrecisionBonus = math.Max(0, bonus)
		res.PrecisionBreakdown.Points = res.PrecisionBonus
	}

	// Penalties past the cap are trimmed in evaluation order so the
	// listed points always add up to the deduction.
	var deducted float64
	for _, p := range e.opts.Penalties.Evaluate(model.Technical) {
		p.Points = math.Max(0, math.Min(p.Points, e.opts.PenaltyCap-deducted))
		res.Penalties = append(res.Penalties, p)
		deducted += p.Points
	}

	res.Score = clamp(res.PrePenaltyScore+res.PrecisionBonus-deducted, 0, 100)
	return res
}
