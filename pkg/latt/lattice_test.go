package latt

import "testing"

func TestInterningIdentity(t *testing.T) {
	in := NewInterner()
	a := in.IntConst(5)
	b := in.IntConst(5)
	if a != b {
		t.Fatalf("two interned constants for 5 are not the same pointer")
	}
	c := in.IntConst(6)
	if a == c {
		t.Fatalf("distinct constants interned to the same pointer")
	}
}

func TestMeetWithTop(t *testing.T) {
	in := NewInterner()
	five := in.IntConst(5)
	if got := in.Meet(in.Top(), five); got != five {
		t.Fatalf("TOP meet x = %v, want x", got)
	}
	if got := in.Meet(five, in.Top()); got != five {
		t.Fatalf("x meet TOP = %v, want x", got)
	}
}

func TestMeetWithBot(t *testing.T) {
	in := NewInterner()
	five := in.IntConst(5)
	if got := in.Meet(in.Bot(), five); got != in.Bot() {
		t.Fatalf("BOT meet x = %v, want BOT", got)
	}
}

func TestMeetDistinctIntsWidens(t *testing.T) {
	in := NewInterner()
	a := in.IntConst(0)
	b := in.IntConst(1)
	m := in.Meet(a, b)
	if m.Kind != KindInt || m.Lo != 0 || m.Hi != 1 {
		t.Fatalf("meet(0,1) = %v, want int[0,1]", m)
	}
	if m.Widen != 1 {
		t.Fatalf("widen counter = %d, want 1", m.Widen)
	}
}

func TestWideningTerminates(t *testing.T) {
	in := NewInterner()
	v := in.IntConst(0)
	for i := int64(1); i < 50; i++ {
		v = in.Meet(v, in.IntConst(i))
	}
	if v.Lo != minInt64 || v.Hi != maxInt64 {
		t.Fatalf("expected widening to BOT-ish full range, got %v", v)
	}
}

func TestMeetIdempotent(t *testing.T) {
	in := NewInterner()
	five := in.IntConst(5)
	if in.Meet(five, five) != five {
		t.Fatalf("meet(x,x) != x")
	}
}

func TestJoinNarrowsRanges(t *testing.T) {
	in := NewInterner()
	a := in.Int(0, 10, 0, 0, 0)
	b := in.Int(5, 20, 0, 0, 0)
	j := in.Join(a, b)
	if j.Lo != 5 || j.Hi != 10 {
		t.Fatalf("join([0,10],[5,20]) = [%d,%d], want [5,10]", j.Lo, j.Hi)
	}
}

func TestLessEq(t *testing.T) {
	in := NewInterner()
	five := in.IntConst(5)
	if !in.LessEq(five, in.Top()) {
		t.Fatalf("x should be <= TOP")
	}
	if !in.LessEq(in.Bot(), five) {
		t.Fatalf("BOT should be <= x")
	}
}
