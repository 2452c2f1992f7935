package evaluator

import (
	"math"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

// equalityEpsilon is the tolerance used by the == operator.
const equalityEpsilon = 0.01

// EvaluateThreshold reports whether observed breaches bound under op.
// Unknown operators never breach.
func EvaluateThreshold(observed, bound float64, op model.Operator) bool {
	switch op {
	case model.OpGreaterThan:
		return observed > bound
	case model.OpGreaterOrEqual:
		return observed >= bound
	case model.OpLessThan:
		return observed < bound
	case model.OpLessOrEqual:
		return observed <= bound
	case model.OpEqual:
		return math.Abs(observed-bound) < equalityEpsilon
	default:
		return false
	}
}
