package types

import (
	"math"
	"testing"
)

func TestAddChipsOverflow(t *testing.T) {
	if _, err := AddChips(math.MaxInt64, 1); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := AddChips(math.MinInt64, -1); err == nil {
		t.Fatalf("expected underflow error")
	}
	sum, err := AddChips(40, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 42 {
		t.Fatalf("expected 42, got %d", sum)
	}
}

func TestSubChips(t *testing.T) {
	diff, err := SubChips(10, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff != -15 {
		t.Fatalf("expected -15, got %d", diff)
	}
	if _, err := SubChips(math.MinInt64, 1); err == nil {
		t.Fatalf("expected underflow error")
	}
}

func TestMulDivChipsFloors(t *testing.T) {
	// 85 * 114 / 120 = 80.75 floors to 80.
	got, err := MulDivChips(85, 114, 120)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 80 {
		t.Fatalf("expected 80, got %d", got)
	}
	// Negative numerators floor toward negative infinity.
	got, err = MulDivChips(-7, 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -4 {
		t.Fatalf("expected -4, got %d", got)
	}
	if _, err := MulDivChips(1, 1, 0); err == nil {
		t.Fatalf("expected error for zero denominator")
	}
}
