package fuser

import (
	"testing"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

func hit(content string) memory.SearchHit {
	return memory.SearchHit{Content: content}
}

func TestFuse_SumsContributionsAcrossLists(t *testing.T) {
	keyword := []memory.SearchHit{hit("a"), hit("b")}
	vector := []memory.SearchHit{hit("b"), hit("a")}

	got := Fuse(60, 10, keyword, vector)
	if len(got) != 2 {
		t.Fatalf("got %d hits, want 2", len(got))
	}

	// Summed at run time in float64, as Fuse does; an untyped constant
	// expression is evaluated exactly and can differ in the last bit.
	r61, r62 := 61.0, 62.0
	wantA := 1/r61 + 1/r62
	wantB := 1/r62 + 1/r61
	if wantA != wantB {
		t.Fatalf("test setup expects equal scores")
	}
	for _, h := range got {
		if h.Score != wantA {
			t.Errorf("Score for %q = %v, want %v", h.Content, h.Score, wantA)
		}
	}
}

func TestFuse_RanksHigherAccumulatedScoreFirst(t *testing.T) {
	keyword := []memory.SearchHit{hit("a"), hit("b"), hit("c")}
	vector := []memory.SearchHit{hit("c")}
	graph := []memory.SearchHit{hit("c")}

	got := Fuse(60, 10, keyword, vector, graph)
	if got[0].Content != "c" {
		t.Fatalf("got[0] = %q, want c (appears in all three lists)", got[0].Content)
	}
}

func TestFuse_TruncatesToLimit(t *testing.T) {
	keyword := []memory.SearchHit{hit("a"), hit("b"), hit("c")}

	got := Fuse(60, 2, keyword)
	if len(got) != 2 {
		t.Fatalf("got %d hits, want 2", len(got))
	}
}

func TestFuse_EmptyInputReturnsEmpty(t *testing.T) {
	got := Fuse(60, 10)
	if len(got) != 0 {
		t.Errorf("want empty, got %+v", got)
	}
}

func TestFuse_ZeroKUsesDefault(t *testing.T) {
	keyword := []memory.SearchHit{hit("a")}
	got := Fuse(0, 10, keyword)
	want := 1.0 / float64(DefaultK+1)
	if got[0].Score != want {
		t.Errorf("Score = %v, want %v", got[0].Score, want)
	}
}

func TestFuse_StableOnTies(t *testing.T) {
	keyword := []memory.SearchHit{hit("first"), hit("second")}

	got := Fuse(60, 10, keyword)
	if got[0].Content != "first" || got[1].Content != "second" {
		t.Errorf("expected stable tie order, got %+v", got)
	}
}
