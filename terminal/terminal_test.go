package terminal

import "testing"

func TestCellAt(t *testing.T) {
	tests := []struct {
		name       string
		x, y, w, h int
		wantI      int
		wantJ      int
		wantOK     bool
	}{
		{"origin", 0, 0, 80, 24, 0, 0, true},
		{"last column", 79, 23, 80, 24, 148, 143, true},
		{"middle", 40, 12, 80, 24, 75, 75, true},
		{"outside right", 80, 0, 80, 24, 0, 0, false},
		{"negative", -1, 3, 80, 24, 0, 0, false},
		{"status line", 3, 24, 80, 24, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, j, ok := CellAt(tt.x, tt.y, tt.w, tt.h, 150)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (i != tt.wantI || j != tt.wantJ) {
				t.Errorf("cell = (%d, %d), want (%d, %d)", i, j, tt.wantI, tt.wantJ)
			}
		})
	}
}

func TestShade(t *testing.T) {
	if Shade(0, 99) != ' ' {
		t.Error("empty cell should be blank")
	}
	if Shade(0.001, 99) != '.' {
		t.Error("any dye should be visible")
	}
	if Shade(99, 99) != '@' || Shade(500, 99) != '@' {
		t.Error("saturated dye should use the densest glyph")
	}
	prev := Shade(1, 99)
	for v := 2.0; v <= 99; v++ {
		r := Shade(v, 99)
		if indexOf(r) < indexOf(prev) {
			t.Fatalf("shade not monotonic at %v", v)
		}
		prev = r
	}
}

func indexOf(r rune) int {
	for i, g := range ramp {
		if g == r {
			return i
		}
	}
	return -1
}
