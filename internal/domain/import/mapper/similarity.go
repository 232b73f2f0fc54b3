package mapper

import "github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"

// Jaccard returns |A∩B| / |A∪B| over the tokens of two header signatures.
func Jaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// BestMatch returns the profile most similar to sig and its score. Ties keep
// the earlier profile.
func BestMatch(sig string, profiles []*Profile) (*Profile, float64) {
	var (
		best      *Profile
		bestScore float64
	)
	for _, p := range profiles {
		if p == nil {
			continue
		}
		if s := Jaccard(sig, p.HeaderSignature); s > bestScore {
			best, bestScore = p, s
		}
	}
	return best, bestScore
}

func tokenSet(sig string) map[string]bool {
	toks := sniffer.SignatureTokens(sig)
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}
