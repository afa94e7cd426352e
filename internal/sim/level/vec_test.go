package level

import "testing"

func TestContainingFloorsNegatives(t *testing.T) {
	got := Containing(Vec3{X: -0.5, Y: 2.9, Z: -3})
	if got != (BlockPos{X: -1, Y: 2, Z: -3}) {
		t.Fatalf("Containing mismatch: %+v", got)
	}
}

func TestBottomCenterAndCloserThan(t *testing.T) {
	c := AtBottomCenterOf(BlockPos{X: 1, Y: 4, Z: -2})
	if c != (Vec3{X: 1.5, Y: 4, Z: -1.5}) {
		t.Fatalf("bottom center mismatch: %+v", c)
	}
	if !c.CloserThan(Vec3{X: 1.5, Y: 4, Z: -0.6}, 1) {
		t.Fatalf("expected point within 1 block")
	}
	if c.CloserThan(Vec3{X: 1.5, Y: 4, Z: -0.5}, 1) {
		t.Fatalf("distance equal to radius must not count as closer")
	}
}

func TestNormalizeZero(t *testing.T) {
	if (Vec3{}).Normalize() != (Vec3{}) {
		t.Fatalf("zero vector should normalize to zero")
	}
}
