package rank

import (
	"github.com/mager/cochlea/config"
	"go.uber.org/zap"
)

// ProvideRanker builds the engine from the configured tunables.
func ProvideRanker(logger *zap.SugaredLogger, cfg config.Config) (Ranker, error) {
	opts := DefaultOptions()
	if cfg.RankPrecisionThreshold > 0 {
		opts.PrecisionThreshold = cfg.RankPrecisionThreshold
	}
	if cfg.RankBonusCap >= 0 {
		opts.BonusCap = cfg.RankBonusCap
	}
	if cfg.RankPenaltyCap >= 0 {
		opts.PenaltyCap = cfg.RankPenaltyCap
	}
	if cfg.RankClosenessExponent > 0 {
		opts.ClosenessExponent = cfg.RankClosenessExponent
	}

	engine, err := NewEngine(opts)
	if err != nil {
		logger.Errorw("Invalid rank options", "error", err)
		return nil, err
	}
	return engine, nil
}
