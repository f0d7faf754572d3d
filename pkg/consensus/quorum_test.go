package consensus

import "testing"

func TestQuorumValues(t *testing.T) {
	cases := []struct{ n, m, f int }{
		{1, 1, 0},
		{4, 3, 1},
		{7, 5, 2},
		{21, 15, 6},
	}
	for _, c := range cases {
		if got := M(c.n); got != c.m {
			t.Errorf("M(%d) = %d, want %d", c.n, got, c.m)
		}
		if got := F(c.n); got != c.f {
			t.Errorf("F(%d) = %d, want %d", c.n, got, c.f)
		}
	}
}

func TestPrimaryIndexWrapsAround(t *testing.T) {
	// height=10, view=0, n=7 -> 10 mod 7 = 3
	if got := PrimaryIndex(10, 0, 7); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
	// view changes shift the speaker backward, wrapping negative residues.
	if got := PrimaryIndex(0, 1, 4); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}
