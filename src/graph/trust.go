package graph

import (
	"math/big"
	"strings"
)

// Default credit settings, in the smallest unit of the settlement asset.
const (
	DefaultBaseCreditForFollowed   = 1000
	DefaultBaseCreditForUnfollowed = 0
	DefaultMutualFollowerBonus     = 100
	DefaultMaxMutualBonus          = 500
	DefaultMaxCreditLimit          = 10000
)

// TrustConfig holds the parameters of the credit computation.
type TrustConfig struct {
	BaseCreditForFollowed   *big.Int
	BaseCreditForUnfollowed *big.Int
	MutualFollowerBonus     *big.Int
	MaxMutualBonus          *big.Int
	MaxCreditLimit          *big.Int
}

// fingerprint identifies the values of c, so that scores computed under
// different settings are cached apart.
func (c TrustConfig) fingerprint() string {
	vals := []*big.Int{
		c.BaseCreditForFollowed,
		c.BaseCreditForUnfollowed,
		c.MutualFollowerBonus,
		c.MaxMutualBonus,
		c.MaxCreditLimit,
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v != nil {
			parts[i] = v.String()
		}
	}
	return strings.Join(parts, "/")
}

// DefaultTrustConfig returns the default credit settings.
func DefaultTrustConfig() TrustConfig {
	return TrustConfig{
		BaseCreditForFollowed:   big.NewInt(DefaultBaseCreditForFollowed),
		BaseCreditForUnfollowed: big.NewInt(DefaultBaseCreditForUnfollowed),
		MutualFollowerBonus:     big.NewInt(DefaultMutualFollowerBonus),
		MaxMutualBonus:          big.NewInt(DefaultMaxMutualBonus),
		MaxCreditLimit:          big.NewInt(DefaultMaxCreditLimit),
	}
}

// TrustScore is the trust self places in Subject.
type TrustScore struct {
	Subject             string   `json:"subject"`
	IsFollowed          bool     `json:"isFollowed"`
	FollowsBack         bool     `json:"followsBack"`
	MutualFollowerCount int      `json:"mutualFollowerCount"`
	CreditLimit         *big.Int `json:"creditLimit"`
	Score               int      `json:"score"`
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Score computes the trust in subject from the follows of self and subject.
func Score(self string, subject string, selfFollows Set, subjectFollows Set, conf TrustConfig) *TrustScore {
	ts := &TrustScore{
		Subject:             subject,
		IsFollowed:          selfFollows.Has(subject),
		FollowsBack:         subjectFollows.Has(self),
		MutualFollowerCount: subjectFollows.Intersect(selfFollows),
	}

	base := orZero(conf.BaseCreditForUnfollowed)
	if ts.IsFollowed {
		base = orZero(conf.BaseCreditForFollowed)
	}

	bonus := new(big.Int).Mul(big.NewInt(int64(ts.MutualFollowerCount)), orZero(conf.MutualFollowerBonus))
	if maxBonus := orZero(conf.MaxMutualBonus); bonus.Cmp(maxBonus) > 0 {
		bonus.Set(maxBonus)
	}

	credit := new(big.Int).Add(base, bonus)
	if ts.FollowsBack && ts.IsFollowed {
		credit.Add(credit, new(big.Int).Quo(base, big.NewInt(2)))
	}

	max := orZero(conf.MaxCreditLimit)
	if credit.Cmp(max) > 0 {
		credit.Set(max)
	}
	ts.CreditLimit = credit

	if max.Sign() > 0 {
		score := new(big.Int).Mul(credit, big.NewInt(100))
		score.Quo(score, max)
		ts.Score = int(score.Int64())
	}
	if ts.Score < 0 {
		ts.Score = 0
	}

	return ts
}
