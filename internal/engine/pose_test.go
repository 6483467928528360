package engine_test

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"vodrive/internal/engine"
)

func TestIdentityQuaternion(t *testing.T) {
	qx, qy, qz, qw := engine.Identity().Quaternion()
	if qx != 0 || qy != 0 || qz != 0 || qw != 1 {
		t.Fatalf("identity quaternion = (%v, %v, %v, %v)", qx, qy, qz, qw)
	}
}

func TestYawQuaternion(t *testing.T) {
	// 90 degrees about y.
	p := engine.Pose{
		0, 0, 1, 0,
		0, 1, 0, 0,
		-1, 0, 0, 0,
		0, 0, 0, 1,
	}
	qx, qy, qz, qw := p.Quaternion()
	want := math.Sqrt(0.5)
	if math.Abs(qx) > 1e-9 || math.Abs(qy-want) > 1e-9 || math.Abs(qz) > 1e-9 || math.Abs(qw-want) > 1e-9 {
		t.Fatalf("unexpected quaternion (%v, %v, %v, %v)", qx, qy, qz, qw)
	}
}

func TestTranslationRoundTrip(t *testing.T) {
	p := engine.Identity().WithTranslation(r3.Vector{X: 1, Y: -2, Z: 3})
	if got := p.Translation(); got != (r3.Vector{X: 1, Y: -2, Z: 3}) {
		t.Fatalf("translation = %v", got)
	}
	if p[15] != 1 {
		t.Fatal("expected homogeneous row preserved")
	}
}

func TestFromTranslationQuaternionRoundTrip(t *testing.T) {
	h := math.Sqrt(0.5)
	p := engine.FromTranslationQuaternion(1, 2, 3, 0, h, 0, h)
	if got := p.Translation(); got != (r3.Vector{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("translation = %v", got)
	}
	qx, qy, qz, qw := p.Quaternion()
	if math.Abs(qx) > 1e-9 || math.Abs(qy-h) > 1e-9 || math.Abs(qz) > 1e-9 || math.Abs(qw-h) > 1e-9 {
		t.Fatalf("unexpected quaternion (%v, %v, %v, %v)", qx, qy, qz, qw)
	}
	if math.Abs(p[2]-1) > 1e-9 || math.Abs(p[8]+1) > 1e-9 {
		t.Fatalf("unexpected rotation %v", p)
	}

	flat := engine.FromTranslationQuaternion(0, 0, 0, 0, 0, 0, 0)
	if flat != engine.Identity() {
		t.Fatalf("zero quaternion should give identity, got %v", flat)
	}
}
