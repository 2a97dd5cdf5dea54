// Package classifier adapts external text classifiers to a single Gateway
// interface.
package classifier

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/veracity/internal/model"
)

// Gateway classifies a single piece of text.
type Gateway interface {
	Classify(ctx context.Context, text string) (Prediction, error)
}

// Prediction is a classifier verdict with its class probabilities.
type Prediction struct {
	Label model.Label
	// Probabilities holds [p_fake, p_real].
	Probabilities [2]float64
}

// Confidence is the larger of the two class probabilities.
func (p Prediction) Confidence() float64 {
	return max(p.Probabilities[0], p.Probabilities[1])
}

// Fake returns the probability of the fake class.
func (p Prediction) Fake() float64 { return p.Probabilities[0] }

// Real returns the probability of the real class.
func (p Prediction) Real() float64 { return p.Probabilities[1] }

// Validate rejects predictions the service cannot log.
func (p Prediction) Validate() error {
	if !p.Label.Valid() {
		return eris.Wrapf(model.ErrUnknownLabel, "classifier: label %q", p.Label)
	}
	for _, v := range p.Probabilities {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return eris.Errorf("classifier: probability %v out of range", v)
		}
	}
	return nil
}

// Func adapts a plain function to Gateway.
type Func func(ctx context.Context, text string) (Prediction, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, text string) (Prediction, error) {
	return f(ctx, text)
}

// Static returns a Gateway that always answers with p.
func Static(p Prediction) Gateway {
	return Func(func(context.Context, string) (Prediction, error) { return p, nil })
}

// FromFakeProbability builds a prediction from p_fake alone. The label is
// fake when p_fake >= 0.5.
func FromFakeProbability(pFake float64) Prediction {
	label := model.LabelReal
	if pFake >= 0.5 {
		label = model.LabelFake
	}
	return Prediction{Label: label, Probabilities: [2]float64{pFake, 1 - pFake}}
}
