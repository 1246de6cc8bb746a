package decoder

import "testing"

func TestPlanWindow(t *testing.T) {
	tests := []struct {
		name                           string
		framesDecoded, lookback, floor int
		end                            int
		want                           Window
	}{
		{"first window", 0, 15, 0, 25, Window{Start: 0, End: 25, Skip: 0}},
		{"partial lookback", 2, 15, 0, 27, Window{Start: 0, End: 27, Skip: 2}},
		{"full lookback", 25, 15, 0, 50, Window{Start: 10, End: 50, Skip: 15}},
		{"no lookback", 4, 0, 0, 6, Window{Start: 4, End: 6, Skip: 0}},
		{"floor limits lookback", 5, 3, 4, 6, Window{Start: 4, End: 6, Skip: 1}},
		{"floor at cursor", 5, 3, 5, 6, Window{Start: 5, End: 6, Skip: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanWindow(tt.framesDecoded, tt.lookback, tt.floor, tt.end)
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
			if got.Start > tt.framesDecoded {
				t.Errorf("Window start %d is past frames decoded %d", got.Start, tt.framesDecoded)
			}
			if got.New() != tt.end-tt.framesDecoded {
				t.Errorf("Expected %d new frames, got %d", tt.end-tt.framesDecoded, got.New())
			}
		})
	}
}
