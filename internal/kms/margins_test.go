package kms

import (
	"errors"
	"testing"
)

func TestAdjustMargins(t *testing.T) {
	full := Rect{W: 100, H: 100}
	tests := []struct {
		name string
		dst  Rect
		m    Margins
		want Rect
		err  error
	}{
		{name: "none", dst: full, want: full},
		{name: "horizontal", dst: full, m: Margins{Left: 10, Right: 10}, want: Rect{X: 10, W: 80, H: 100}},
		{name: "all sides", dst: full, m: Margins{Left: 10, Right: 10, Top: 5, Bottom: 15}, want: Rect{X: 10, Y: 5, W: 80, H: 80}},
		{name: "rounding", dst: Rect{W: 101, H: 100}, m: Margins{Left: 10, Right: 10}, want: Rect{X: 10, W: 81, H: 100}},
		{name: "clamped origin", dst: Rect{X: 200, W: 10, H: 10}, m: Margins{Left: 10, Right: 10}, want: Rect{X: 90, W: 8, H: 10}},
		{name: "negative origin", dst: Rect{X: -50, W: 100, H: 100}, m: Margins{Left: 10, Right: 10}, want: Rect{X: -30, W: 80, H: 100}},
		{name: "no area", dst: full, m: Margins{Left: 50, Right: 50}, err: ErrInvalidMargins},
		{name: "collapsed", dst: Rect{W: 1, H: 100}, m: Margins{Left: 40, Right: 40}, err: ErrInvalidMargins},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AdjustMargins(tt.dst, 100, 100, tt.m)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v (%+v)", tt.err, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("AdjustMargins: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
