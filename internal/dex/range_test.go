package dex

import (
	"reflect"
	"testing"
)

func TestSplitTickRange(t *testing.T) {
	got, err := SplitTickRange(-100, 100, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []TickRange{
		{Lower: -100, Upper: -1},
		{Lower: 0, Upper: 100},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitTickRangeAcrossWordBoundary(t *testing.T) {
	got, err := SplitTickRange(15000, 16000, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []TickRange{
		{Lower: 15000, Upper: 15359},
		{Lower: 15360, Upper: 16000},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitTickRangeSingle(t *testing.T) {
	got, err := SplitTickRange(0, 600, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []TickRange{{Lower: 0, Upper: 600}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitTickRangeInvalid(t *testing.T) {
	if _, err := SplitTickRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitTickRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero tick spacing")
	}
}

func TestBitmapWord(t *testing.T) {
	cases := []struct {
		tick, spacing int32
		want          int16
	}{
		{tick: 0, spacing: 1, want: 0},
		{tick: 255, spacing: 1, want: 0},
		{tick: 256, spacing: 1, want: 1},
		{tick: -1, spacing: 1, want: -1},
		{tick: -61, spacing: 60, want: -1},
		{tick: 15360, spacing: 60, want: 1},
	}
	for _, c := range cases {
		if got := BitmapWord(c.tick, c.spacing); got != c.want {
			t.Fatalf("BitmapWord(%d, %d) = %d, want %d", c.tick, c.spacing, got, c.want)
		}
	}
}
