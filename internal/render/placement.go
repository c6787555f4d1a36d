package render

import "github.com/jkallio/tourguide/internal/dom"

// Side is the side of the target element a tooltip attaches to.
type Side string

const (
	SideTop    Side = "top"
	SideBottom Side = "bottom"
	SideLeft   Side = "left"
	SideRight  Side = "right"
)

// Size is a tooltip's rendered dimensions.
type Size struct {
	Width  float64
	Height float64
}

// Position is a resolved tooltip placement in viewport coordinates.
//
// ArrowOffset is the distance, in pixels, from the tooltip's leading edge
// (left edge for top/bottom placements, top edge for left/right) to where
// the arrow must sit so it keeps pointing at the target center even after
// the tooltip body has been clamped to the viewport.
type Position struct {
	X           float64
	Y           float64
	Side        Side
	ArrowOffset float64
}

const (
	// viewportMargin keeps the tooltip off the viewport edges.
	viewportMargin = 8.0
	// arrowInset keeps the arrow away from the tooltip corners.
	arrowInset = 12.0
)

func opposite(s Side) Side {
	switch s {
	case SideTop:
		return SideBottom
	case SideBottom:
		return SideTop
	case SideLeft:
		return SideRight
	default:
		return SideLeft
	}
}

func perpendiculars(s Side) [2]Side {
	switch s {
	case SideTop, SideBottom:
		return [2]Side{SideRight, SideLeft}
	default:
		return [2]Side{SideBottom, SideTop}
	}
}

// Place computes where a tooltip of the given size goes relative to target.
//
// The preferred side is tried first, then its opposite, then the two
// perpendicular sides. If none fits entirely inside the viewport, the
// preferred side wins and the position is clamped to the viewport margins,
// with the arrow offset recomputed from the clamp delta.
func Place(target dom.Rect, tip Size, vp dom.Viewport, preferred Side, gap float64) Position {
	if preferred == "" {
		preferred = SideBottom
	}

	candidates := []Side{preferred, opposite(preferred)}
	perp := perpendiculars(preferred)
	candidates = append(candidates, perp[0], perp[1])

	for _, side := range candidates {
		pos := positionFor(target, tip, side, gap)
		if fits(pos, tip, vp) {
			return clampAndAim(pos, target, tip, vp)
		}
	}
	return clampAndAim(positionFor(target, tip, preferred, gap), target, tip, vp)
}

// positionFor centers the tooltip along the target on the given side.
func positionFor(target dom.Rect, tip Size, side Side, gap float64) Position {
	cx := target.X + target.Width/2
	cy := target.Y + target.Height/2

	switch side {
	case SideTop:
		return Position{X: cx - tip.Width/2, Y: target.Y - gap - tip.Height, Side: SideTop}
	case SideBottom:
		return Position{X: cx - tip.Width/2, Y: target.Y + target.Height + gap, Side: SideBottom}
	case SideLeft:
		return Position{X: target.X - gap - tip.Width, Y: cy - tip.Height/2, Side: SideLeft}
	default:
		return Position{X: target.X + target.Width + gap, Y: cy - tip.Height/2, Side: SideRight}
	}
}

func fits(p Position, tip Size, vp dom.Viewport) bool {
	return p.X >= viewportMargin &&
		p.Y >= viewportMargin &&
		p.X+tip.Width <= vp.Width-viewportMargin &&
		p.Y+tip.Height <= vp.Height-viewportMargin
}

// clampAndAim pins the tooltip inside the viewport margins and then points
// the arrow back at the target center.
func clampAndAim(p Position, target dom.Rect, tip Size, vp dom.Viewport) Position {
	p.X = clamp(p.X, viewportMargin, vp.Width-viewportMargin-tip.Width)
	p.Y = clamp(p.Y, viewportMargin, vp.Height-viewportMargin-tip.Height)

	switch p.Side {
	case SideTop, SideBottom:
		center := target.X + target.Width/2
		p.ArrowOffset = clamp(center-p.X, arrowInset, tip.Width-arrowInset)
	default:
		center := target.Y + target.Height/2
		p.ArrowOffset = clamp(center-p.Y, arrowInset, tip.Height-arrowInset)
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
