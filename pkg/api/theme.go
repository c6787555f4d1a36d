package api

// Animation is the cosmetic variant used when highlighting an element.
type Animation string

const (
	AnimationPulse  Animation = "pulse"
	AnimationGlow   Animation = "glow"
	AnimationBorder Animation = "border"
	AnimationShake  Animation = "shake"
	AnimationBounce Animation = "bounce"
	AnimationFade   Animation = "fade"
)

// Theme controls the overlay's colors, corner radius and default animation.
type Theme struct {
	PrimaryColor    string    `json:"primary_color"`
	HighlightColor  string    `json:"highlight_color"`
	TextColor       string    `json:"text_color"`
	BackgroundColor string    `json:"background_color"`
	BorderRadius    int       `json:"border_radius"`
	Animation       Animation `json:"animation"`
}

// DefaultTheme is used when a configuration carries no theme of its own.
func DefaultTheme() Theme {
	return Theme{
		PrimaryColor:    "#2563eb",
		HighlightColor:  "#f59e0b",
		TextColor:       "#111827",
		BackgroundColor: "#ffffff",
		BorderRadius:    8,
		Animation:       AnimationPulse,
	}
}

// ThemeOverride is a per-step theme override. Nil fields keep the base
// theme's value; set fields replace it. It merges field by field rather
// than replacing the whole struct.
type ThemeOverride struct {
	PrimaryColor    *string    `json:"primary_color,omitempty"`
	HighlightColor  *string    `json:"highlight_color,omitempty"`
	TextColor       *string    `json:"text_color,omitempty"`
	BackgroundColor *string    `json:"background_color,omitempty"`
	BorderRadius    *int       `json:"border_radius,omitempty"`
	Animation       *Animation `json:"animation,omitempty"`
}

// Merge applies the override on top of base and returns the result.
// A nil receiver returns base unchanged.
func (o *ThemeOverride) Merge(base Theme) Theme {
	if o == nil {
		return base
	}
	out := base
	if o.PrimaryColor != nil {
		out.PrimaryColor = *o.PrimaryColor
	}
	if o.HighlightColor != nil {
		out.HighlightColor = *o.HighlightColor
	}
	if o.TextColor != nil {
		out.TextColor = *o.TextColor
	}
	if o.BackgroundColor != nil {
		out.BackgroundColor = *o.BackgroundColor
	}
	if o.BorderRadius != nil {
		out.BorderRadius = *o.BorderRadius
	}
	if o.Animation != nil {
		out.Animation = *o.Animation
	}
	return out
}

// EffectiveTheme resolves the theme to render a given step with.
func (c *Configuration) EffectiveTheme(step Step) Theme {
	return step.Theme.Merge(c.Theme)
}
