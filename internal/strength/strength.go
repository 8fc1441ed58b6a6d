// Package strength scores vault secrets. The engine treats scoring as an
// opaque pluggable capability; the default scorer is length-first per
// NIST SP 800-63B (composition rules are deliberately ignored).
package strength

// Scorer rates a plaintext secret and returns an integer score.
// Implementations must not retain or log the secret.
type Scorer interface {
	Score(secret string) int
}

// Score levels returned by the default scorer.
const (
	Weak   = 0
	Fair   = 1
	Good   = 2
	Strong = 3
)

// LengthScorer is the default Scorer. Length is the primary factor:
// user-chosen passwords gain strength with length, not character classes.
type LengthScorer struct{}

// NewLengthScorer returns the default scorer.
func NewLengthScorer() *LengthScorer {
	return &LengthScorer{}
}

func (s *LengthScorer) Score(secret string) int {
	switch l := len(secret); {
	case l >= 20:
		return Strong
	case l >= 14:
		return Good
	case l >= 8:
		return Fair
	default:
		return Weak
	}
}
