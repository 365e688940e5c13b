package usecase

import (
	"math"
	"testing"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

func hits(ids ...string) []domain.RankedHit {
	out := make([]domain.RankedHit, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.RankedHit{DocumentID: id, Rank: i + 1, Score: float64(100 - i)})
	}
	return out
}

func TestFuseRRFAutotaxinScenario(t *testing.T) {
	vector := hits("D1", "D2", "D3")
	lexical := hits("D2", "D4", "D1")

	fused := FuseRRF(5, vector, lexical)
	if len(fused) != 4 {
		t.Fatalf("expected 4 fused results, got %d", len(fused))
	}

	want := []struct {
		id    string
		score float64
	}{
		{"D2", 1.0/7 + 1.0/6},
		{"D1", 1.0/6 + 1.0/8},
		{"D4", 1.0 / 7},
		{"D3", 1.0 / 8},
	}
	for i, w := range want {
		if fused[i].DocumentID != w.id {
			t.Fatalf("position %d: expected %s, got %s", i, w.id, fused[i].DocumentID)
		}
		if math.Abs(fused[i].Score-w.score) > 1e-12 {
			t.Fatalf("position %d: expected score %f, got %f", i, w.score, fused[i].Score)
		}
	}
}

func TestFuseRRFIgnoresNativeScores(t *testing.T) {
	a := []domain.RankedHit{{DocumentID: "x", Score: 0.01}, {DocumentID: "y", Score: 1000}}
	b := []domain.RankedHit{{DocumentID: "x", Score: -5}, {DocumentID: "y", Score: 9999}}

	fused := FuseRRF(60, a, b)
	if fused[0].DocumentID != "x" {
		t.Fatalf("expected rank position to win over native score, got %s first", fused[0].DocumentID)
	}
}

func TestFuseRRFIdenticalListsPreserveOrder(t *testing.T) {
	list := hits("a", "b", "c", "d")

	fused := FuseRRF(60, list, list)
	for i, id := range []string{"a", "b", "c", "d"} {
		if fused[i].DocumentID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, fused[i].DocumentID)
		}
		want := 2.0 / float64(i+1+60)
		if math.Abs(fused[i].Score-want) > 1e-12 {
			t.Fatalf("position %d: expected score %f, got %f", i, want, fused[i].Score)
		}
	}
}

func TestFuseRRFEveryDocumentAppearsOnce(t *testing.T) {
	fused := FuseRRF(60, hits("a", "b", "a"), hits("c", "b"), hits())
	seen := map[string]int{}
	for _, f := range fused {
		seen[f.DocumentID]++
	}
	if len(seen) != 3 || len(fused) != 3 {
		t.Fatalf("expected 3 unique results, got %+v", fused)
	}
	// "a" is duplicated inside one list and must only count once.
	for _, f := range fused {
		if f.DocumentID == "a" && math.Abs(f.Score-1.0/61) > 1e-12 {
			t.Fatalf("expected duplicate to count once, got %f", f.Score)
		}
	}
}

func TestFuseRRFTieBreakByBestRankThenID(t *testing.T) {
	fused := FuseRRF(60, hits("doc-b"), hits("doc-a"))
	if fused[0].DocumentID != "doc-a" || fused[1].DocumentID != "doc-b" {
		t.Fatalf("expected tie resolved by id, got %+v", fused)
	}

	fused = FuseRRF(1, hits("x", "z"), hits("y"), hits("z"))
	// z: 1/3 + 1/2 > x: 1/2 = y: 1/2; x and y share best rank 1 so id decides.
	got := []string{fused[0].DocumentID, fused[1].DocumentID, fused[2].DocumentID}
	want := []string{"z", "x", "y"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestFuseRRFDefaultK(t *testing.T) {
	fused := FuseRRF(0, hits("a"))
	if math.Abs(fused[0].Score-1.0/61) > 1e-12 {
		t.Fatalf("expected default k=60, got score %f", fused[0].Score)
	}
}

func TestFuseRRFEmpty(t *testing.T) {
	if fused := FuseRRF(60); len(fused) != 0 {
		t.Fatalf("expected empty result, got %+v", fused)
	}
}
