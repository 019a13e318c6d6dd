// Package rating implements the pairwise skill update used by ranking replays.
//
// The model is two-player TrueSkill for a decisive result. With the default
// environment a player's prior is N(25, (25/3)^2), performance noise is
// beta = 25/6 and the draw probability that determines the draw margin is 10%.
// The dynamics factor tau is zero, so a player's sigma never grows: every
// result can only add confidence. Rankings order players by the posterior
// mean, which moves up for the winner and down for the loser of every match.
package rating

import (
	"math"

	"bracket-rankings/internal/domain"
)

const (
	Beta            = domain.DefaultSigma / 2
	DrawProbability = 0.10
)

var drawMargin = inverseCDF((DrawProbability+1)/2) * math.Sqrt2 * Beta

// Update returns the new ratings after winner beat loser. The argument order
// matters: Update(a, b) and Update(b, a) describe opposite results.
func Update(winner, loser domain.Rating) (domain.Rating, domain.Rating) {
	winnerVar := winner.Sigma * winner.Sigma
	loserVar := loser.Sigma * loser.Sigma

	c2 := 2*Beta*Beta + winnerVar + loserVar
	c := math.Sqrt(c2)

	x := (winner.Mu-loser.Mu)/c - drawMargin/c
	v := vWin(x)
	w := wWin(x, v)

	newWinner := domain.Rating{
		Mu:    winner.Mu + winnerVar/c*v,
		Sigma: math.Sqrt(winnerVar * (1 - winnerVar/c2*w)),
	}
	newLoser := domain.Rating{
		Mu:    loser.Mu - loserVar/c*v,
		Sigma: math.Sqrt(loserVar * (1 - loserVar/c2*w)),
	}
	return newWinner, newLoser
}

// Expose is the skill scalar used to order a ranking.
func Expose(r domain.Rating) float64 {
	return r.Expose()
}

// WinProbability is the chance that a beats b under the model.
func WinProbability(a, b domain.Rating) float64 {
	c := math.Sqrt(2*Beta*Beta + a.Sigma*a.Sigma + b.Sigma*b.Sigma)
	return cdf((a.Mu - b.Mu) / c)
}

// vWin is the additive mean correction for a win, pdf(x)/cdf(x).
func vWin(x float64) float64 {
	denom := cdf(x)
	if denom < 1e-300 {
		return -x
	}
	return pdf(x) / denom
}

// wWin is the multiplicative variance correction for a win; it lies in (0, 1).
func wWin(x, v float64) float64 {
	w := v * (v + x)
	if w <= 0 {
		// underflow: an extreme upset tends to 1, an expected result to 0
		if x < 0 {
			return 1 - 1e-12
		}
		return math.SmallestNonzeroFloat64
	}
	if w >= 1 {
		return 1 - 1e-12
	}
	return w
}

func pdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func cdf(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func inverseCDF(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}
