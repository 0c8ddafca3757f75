package overlay

import (
	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/pkg/formulas"
	"github.com/rs/zerolog"
)

// Prediction is one fitted-and-scored overlay call.
type Prediction struct {
	Probability  float64
	Override     float64
	TrainingRows int
}

// Overlay fits a fresh scaler and classifier on every call.
type Overlay struct {
	cfg config.Engine
	log zerolog.Logger
}

// New creates an overlay.
func New(cfg config.Engine, log zerolog.Logger) *Overlay {
	return &Overlay{
		cfg: cfg,
		log: log.With().Str("component", "ml_overlay").Logger(),
	}
}

// Predict returns the momentum-weight override for the current features.
// ok is false when fewer than MLMinRows complete rows exist, only one class
// is present, the current features are incomplete or the fit fails.
func (o *Overlay) Predict(rows []Row, current Features) (Prediction, bool) {
	if !current.Complete() {
		return Prediction{}, false
	}

	X := make([][]float64, 0, len(rows))
	y := make([]bool, 0, len(rows))
	positives := 0
	for _, r := range rows {
		if !r.Complete() {
			continue
		}
		X = append(X, r.Vector())
		y = append(y, r.Label)
		if r.Label {
			positives++
		}
	}
	if len(X) < o.cfg.MLMinRows || positives == 0 || positives == len(X) {
		return Prediction{TrainingRows: len(X)}, false
	}

	scaler := &StandardScaler{}
	if err := scaler.Fit(X); err != nil {
		o.log.Warn().Err(err).Msg("Scaler fit failed")
		return Prediction{TrainingRows: len(X)}, false
	}
	clf := NewLogisticRegression()
	if err := clf.Fit(scaler.TransformAll(X), y); err != nil {
		o.log.Warn().Err(err).Int("rows", len(X)).Msg("Classifier fit failed")
		return Prediction{TrainingRows: len(X)}, false
	}

	p := clf.PredictProba(scaler.Transform(current.Vector()))
	pred := Prediction{
		Probability:  p,
		Override:     o.OverrideFor(p),
		TrainingRows: len(X),
	}
	o.log.Debug().
		Float64("probability", p).
		Float64("override", pred.Override).
		Int("rows", len(X)).
		Msg("Momentum overlay prediction")
	return pred, true
}

// OverrideFor maps a probability to a momentum weight.
func (o *Overlay) OverrideFor(p float64) float64 {
	return formulas.Clamp(o.cfg.OverlayBase+o.cfg.OverlaySlope*p, o.cfg.OverlayMin, o.cfg.OverlayMax)
}

// ConcentrationBonus lifts an override in a concentrated market.
func (o *Overlay) ConcentrationBonus(override float64) float64 {
	return formulas.Clamp(override+o.cfg.ConcMomBonus, o.cfg.ConcOverlayMin, o.cfg.ConcOverlayMax)
}
