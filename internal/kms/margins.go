package kms

// Margins are overscan insets in pixels.
type Margins struct {
	Left, Right, Top, Bottom uint32
}

func (m Margins) IsZero() bool {
	return m.Left == 0 && m.Right == 0 && m.Top == 0 && m.Bottom == 0
}

// Rect is a plane destination rectangle on the CRTC.
type Rect struct {
	X, Y int32
	W, H uint32
}

// divRoundClosest divides rounding half away from zero.
func divRoundClosest(n, d int64) int64 {
	if (n < 0) != (d < 0) {
		return (n - d/2) / d
	}
	return (n + d/2) / d
}

// AdjustMargins shrinks dst into the area left visible by m on a
// hdisplay x vdisplay mode.
func AdjustMargins(dst Rect, hdisplay, vdisplay uint32, m Margins) (Rect, error) {
	if m.IsZero() {
		return dst, nil
	}
	if uint64(m.Left)+uint64(m.Right) >= uint64(hdisplay) ||
		uint64(m.Top)+uint64(m.Bottom) >= uint64(vdisplay) {
		return Rect{}, ErrInvalidMargins
	}

	h, v := int64(hdisplay), int64(vdisplay)
	adjh := h - int64(m.Left) - int64(m.Right)
	adjv := v - int64(m.Top) - int64(m.Bottom)

	x := divRoundClosest(int64(dst.X)*adjh, h) + int64(m.Left)
	if x > h-int64(m.Left) {
		x = h - int64(m.Left)
	}
	y := divRoundClosest(int64(dst.Y)*adjv, v) + int64(m.Top)
	if y > v-int64(m.Top) {
		y = v - int64(m.Top)
	}
	w := divRoundClosest(int64(dst.W)*adjh, h)
	hh := divRoundClosest(int64(dst.H)*adjv, v)
	if w == 0 || hh == 0 {
		return Rect{}, ErrInvalidMargins
	}
	return Rect{X: int32(x), Y: int32(y), W: uint32(w), H: uint32(hh)}, nil
}
