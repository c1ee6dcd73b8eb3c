package qdrant

import (
	"math"
	"testing"
)

func ids(cs []candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.id
	}
	return out
}

func mk(ids ...string) []candidate {
	out := make([]candidate, len(ids))
	for i, id := range ids {
		out[i] = candidate{id: id}
	}
	return out
}

func TestFuseRRF_SingleChannel(t *testing.T) {
	got := fuseRRF([][]candidate{mk("a", "b", "c")}, 10)
	want := []string{"a", "b", "c"}
	if len(got) != 3 {
		t.Fatalf("want 3 results, got %d", len(got))
	}
	for i, w := range want {
		if got[i].id != w {
			t.Errorf("position %d = %s, want %s", i, got[i].id, w)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].score > got[i-1].score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

func TestFuseRRF_AgreementWins(t *testing.T) {
	// "b" ranks second in both channels; "a" and "c" each lead one
	// channel but are absent from the other.
	got := fuseRRF([][]candidate{mk("a", "b"), mk("c", "b")}, 10)
	if got[0].id != "b" {
		t.Errorf("document present in both channels should rank first, got %s", got[0].id)
	}
	wantScore := 1.0/(rrfK+2) + 1.0/(rrfK+2)
	if math.Abs(got[0].score-wantScore) > 1e-12 {
		t.Errorf("score = %v, want %v", got[0].score, wantScore)
	}
}

func TestFuseRRF_AbsentChannelContributesZero(t *testing.T) {
	got := fuseRRF([][]candidate{mk("a"), nil}, 10)
	wantScore := 1.0 / (rrfK + 1)
	if math.Abs(got[0].score-wantScore) > 1e-12 {
		t.Errorf("score = %v, want %v", got[0].score, wantScore)
	}
}

func TestFuseRRF_TieBreakIsStable(t *testing.T) {
	// "a" and "c" have identical score profiles (rank 1 in one channel,
	// absent from the other); "a" appears first, so it stays first.
	got := fuseRRF([][]candidate{mk("a", "b"), mk("c", "b")}, 10)
	if got[1].id != "a" || got[2].id != "c" {
		t.Errorf("tie should break by first appearance: got %v", ids([]candidate{got[1].candidate, got[2].candidate}))
	}
}

func TestFuseRRF_Deterministic(t *testing.T) {
	channels := [][]candidate{mk("x", "y", "z"), mk("z", "q", "x")}
	first := fuseRRF(channels, 10)
	second := fuseRRF(channels, 10)
	if len(first) != len(second) {
		t.Fatal("runs differ in length")
	}
	for i := range first {
		if first[i].id != second[i].id || first[i].score != second[i].score {
			t.Errorf("position %d differs between identical runs", i)
		}
	}
}

func TestFuseRRF_LimitApplied(t *testing.T) {
	got := fuseRRF([][]candidate{mk("a", "b", "c", "d"), mk("d", "c", "b", "a")}, 2)
	if len(got) != 2 {
		t.Errorf("want 2 results, got %d", len(got))
	}
}

func TestFuseRRF_Empty(t *testing.T) {
	if got := fuseRRF(nil, 5); len(got) != 0 {
		t.Errorf("no channels should fuse to nothing, got %d", len(got))
	}
	if got := fuseRRF([][]candidate{nil, nil}, 5); len(got) != 0 {
		t.Errorf("empty channels should fuse to nothing, got %d", len(got))
	}
}
