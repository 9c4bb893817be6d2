package accountant

import "testing"

func TestMonotoneNeverRegresses(t *testing.T) {
	cases := []struct {
		last, current, want float64
	}{
		{10, 20, 20},
		{20, 10, 20},
		{0, 0, 0},
		{5.5, 5.5, 5.5},
	}
	for _, c := range cases {
		if got := Monotone(c.last, c.current); got != c.want {
			t.Errorf("Monotone(%v, %v) = %v, want %v", c.last, c.current, got, c.want)
		}
	}
}

func TestSampleMB(t *testing.T) {
	s := Sample{IngressBytes: 1 << 20, EgressBytes: 1 << 20}
	if got := s.MB(); got != 2 {
		t.Errorf("Sample.MB() = %v, want 2", got)
	}
}
