package checksum

import "testing"

func TestSum(t *testing.T) {
	a := Sum([]byte(`[{"id":"p1"}]`))
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	if a != Sum([]byte(`[{"id":"p1"}]`)) {
		t.Error("same content must give the same sum")
	}
	if a == Sum([]byte(`[{"id":"p2"}]`)) {
		t.Error("different content must differ")
	}
}

func TestSum_AbsentKey(t *testing.T) {
	if got := Sum(nil); got != "" {
		t.Errorf("Sum(nil) = %q, want empty", got)
	}
	if Sum([]byte{}) == "" {
		t.Error("an empty stored value is still content")
	}
}
