package service

import "testing"

func TestTally(t *testing.T) {
	tests := []struct {
		name    string
		weights []int
		want    int
	}{
		{"没有投票", nil, 0},
		{"单票", []int{8}, 8},
		{"多数胜出", []int{3, 5, 5, 13}, 5},
		{"平票时后出现的胜出", []int{3, 3, 5, 5}, 5},
		{"按首次出现顺序而非大小", []int{5, 3, 3, 5}, 3},
		{"交错的平票", []int{21, 1, 21, 1, 2}, 1},
		{"少数票在后不影响", []int{13, 13, 13, 1}, 13},
		{"全部不同取最后出现的", []int{1, 2, 3, 5, 8}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tally(tt.weights); got != tt.want {
				t.Errorf("Tally(%v) = %d, want %d", tt.weights, got, tt.want)
			}
		})
	}
}
