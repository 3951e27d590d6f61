package engine

import "github.com/rs/zerolog"

// CutStatistics collects counts for each pruning/cutoff mechanism of one search.
type CutStatistics struct {
	Nodes               uint64
	QuiescenceNodes     uint64
	BeamPruned          uint64
	BetaCutoffs         uint64
	QStandPatCutoffs    uint64
	QBetaCutoffs        uint64
	AspirationResearch  uint64
	RepetitionDraws     uint64
	RecoveredIterations uint64
}

func (c *CutStatistics) MarshalZerologObject(e *zerolog.Event) {
	e.Uint64("nodes", c.Nodes).
		Uint64("qnodes", c.QuiescenceNodes).
		Uint64("beam_pruned", c.BeamPruned).
		Uint64("beta_cutoffs", c.BetaCutoffs).
		Uint64("qstandpat_cutoffs", c.QStandPatCutoffs).
		Uint64("qbeta_cutoffs", c.QBetaCutoffs).
		Uint64("aspiration_researches", c.AspirationResearch).
		Uint64("repetition_draws", c.RepetitionDraws).
		Uint64("recovered_iterations", c.RecoveredIterations)
}

func dumpCutStats(logger zerolog.Logger, stats *CutStatistics) {
	logger.Debug().EmbedObject(stats).Msg("cut-statistics")
}
