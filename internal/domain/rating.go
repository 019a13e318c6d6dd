package domain

const (
	DefaultMu    = 25.0
	DefaultSigma = DefaultMu / 3
)

// Rating is a region-scoped skill estimate.
type Rating struct {
	Mu    float64
	Sigma float64
}

func DefaultRating() Rating {
	return Rating{Mu: DefaultMu, Sigma: DefaultSigma}
}

// Expose returns the scalar used to order rankings: the posterior mean. A win
// always raises it and a loss always lowers it, whatever the two sigmas are.
func (r Rating) Expose() float64 {
	return r.Mu
}
