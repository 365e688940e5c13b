package usecase

import (
	"sort"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	id       string
	score    float64
	bestRank int
}

// FuseRRF merges ranked lists with reciprocal rank fusion:
//
//	score(d) = sum over lists containing d of 1/(rank + k)
//
// where rank is the 1-based position in the list. Native list scores are ignored.
// Equal scores are ordered by the best single-list rank, then by document id.
func FuseRRF(rrfK int, lists ...[]domain.RankedHit) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	for _, list := range lists {
		seen := make(map[string]struct{}, len(list))
		for pos, hit := range list {
			if hit.DocumentID == "" {
				continue
			}
			// A document repeated inside one list only counts at its first position.
			if _, dup := seen[hit.DocumentID]; dup {
				continue
			}
			seen[hit.DocumentID] = struct{}{}

			rank := pos + 1
			candidate, ok := acc[hit.DocumentID]
			if !ok {
				candidate = &fusedCandidate{id: hit.DocumentID, bestRank: rank}
				acc[hit.DocumentID] = candidate
			}
			candidate.score += 1.0 / float64(rank+rrfK)
			if rank < candidate.bestRank {
				candidate.bestRank = rank
			}
		}
	}

	candidates := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].bestRank != candidates[j].bestRank {
			return candidates[i].bestRank < candidates[j].bestRank
		}
		return candidates[i].id < candidates[j].id
	})

	out := make([]domain.FusedResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.FusedResult{DocumentID: c.id, Score: c.score})
	}
	return out
}

func fusedIDs(fused []domain.FusedResult) []string {
	ids := make([]string, 0, len(fused))
	for _, f := range fused {
		ids = append(ids, f.DocumentID)
	}
	return ids
}
