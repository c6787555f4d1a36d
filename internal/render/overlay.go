// Package render draws the tour overlay: element highlights, tooltips with
// a placement arrow, and full-screen modals for steps without a target.
//
// All drawing happens inside the page via Page.Eval with one fixed snippet
// parameterized by geometry and theme. The overlay is a singleton: rendering
// anything removes whatever was shown before.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jkallio/tourguide/internal/dom"
	"github.com/jkallio/tourguide/pkg/api"
)

// overlayID is the DOM id of the overlay root. One per page.
const overlayID = "__tourguide-overlay"

// Default tooltip box used for placement. The snippet sizes the real box to
// its content; the estimate only decides which side the tooltip lands on.
var defaultTooltipSize = Size{Width: 320, Height: 150}

// Overlay renders tour visuals onto a Page.
type Overlay struct {
	page dom.Page
	log  *slog.Logger

	// PreferredSide is where tooltips try to land first. Empty means
	// below the target.
	PreferredSide Side
}

// NewOverlay creates an Overlay bound to the given page.
func NewOverlay(page dom.Page, log *slog.Logger) *Overlay {
	if log == nil {
		log = slog.Default()
	}
	return &Overlay{page: page, log: log}
}

// overlayParams is the JSON payload handed to the injected snippet.
type overlayParams struct {
	Kind string `json:"kind"` // highlight | tooltip | modal | clear

	Target dom.Rect `json:"target,omitempty"`

	// highlight
	Color      string        `json:"color,omitempty"`
	Animation  api.Animation `json:"animation,omitempty"`
	DurationMs int           `json:"duration_ms,omitempty"`

	// tooltip / modal content
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	Instructions   string `json:"instructions,omitempty"`
	Image          string `json:"image,omitempty"`
	ShowNextButton bool   `json:"show_next_button,omitempty"`

	// tooltip geometry
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	Side        Side    `json:"side,omitempty"`
	ArrowOffset float64 `json:"arrow_offset,omitempty"`

	Theme api.Theme `json:"theme"`
}

// Highlight draws an animated box around the first match of selector.
// Duration <= 0 keeps the highlight until the next render call.
func (o *Overlay) Highlight(ctx context.Context, selector string, theme api.Theme, animation api.Animation, durationMs int) error {
	rect, err := o.page.Rect(selector)
	if err != nil {
		return err
	}
	if animation == "" {
		animation = theme.Animation
	}
	color := theme.HighlightColor
	return o.inject(ctx, overlayParams{
		Kind:       "highlight",
		Target:     rect,
		Color:      color,
		Animation:  animation,
		DurationMs: durationMs,
		Theme:      theme,
	})
}

// ShowStep renders the step's UI: a tooltip anchored to the target element
// for page steps, a centered modal for modal steps.
func (o *Overlay) ShowStep(ctx context.Context, step api.Step, theme api.Theme) error {
	if step.TargetType == api.TargetModal || step.TargetSelector == "" {
		return o.inject(ctx, overlayParams{
			Kind:           "modal",
			Title:          step.Title,
			Description:    step.Description,
			Instructions:   step.Instructions,
			Image:          step.Image,
			ShowNextButton: step.ShowNextButton,
			Theme:          theme,
		})
	}

	rect, err := o.page.Rect(step.TargetSelector)
	if err != nil {
		return err
	}
	vp, err := o.page.Viewport()
	if err != nil {
		return err
	}
	pos := Place(rect, defaultTooltipSize, vp, o.PreferredSide, 12)

	return o.inject(ctx, overlayParams{
		Kind:           "tooltip",
		Target:         rect,
		Title:          step.Title,
		Description:    step.Description,
		Instructions:   step.Instructions,
		Image:          step.Image,
		ShowNextButton: step.ShowNextButton,
		X:              pos.X,
		Y:              pos.Y,
		Side:           pos.Side,
		ArrowOffset:    pos.ArrowOffset,
		Theme:          theme,
	})
}

// Clear removes the overlay from the page.
func (o *Overlay) Clear(ctx context.Context) error {
	return o.inject(ctx, overlayParams{Kind: "clear"})
}

func (o *Overlay) inject(ctx context.Context, p overlayParams) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(overlaySnippet, overlayID, string(payload))
	if err := o.page.Eval(ctx, script, nil); err != nil {
		return fmt.Errorf("render %s: %w", p.Kind, err)
	}
	return nil
}

// overlaySnippet mounts or replaces the overlay root. Everything except the
// tooltip/modal buttons carries pointer-events: none so the page underneath
// stays interactive.
const overlaySnippet = `(function (p) {
	var id = %q;
	var prev = document.getElementById(id);
	if (prev) { prev.remove(); }
	if (p.kind === 'clear') { return; }

	var root = document.createElement('div');
	root.id = id;
	root.style.cssText = 'position:fixed;inset:0;z-index:2147483000;pointer-events:none;';
	document.body.appendChild(root);

	function esc(s) {
		var d = document.createElement('div');
		d.textContent = s || '';
		return d.innerHTML;
	}

	if (p.kind === 'highlight') {
		var box = document.createElement('div');
		box.className = 'tourguide-highlight tourguide-anim-' + p.animation;
		box.style.cssText =
			'position:absolute;pointer-events:none;' +
			'left:' + (p.target.x - 4) + 'px;top:' + (p.target.y - 4) + 'px;' +
			'width:' + (p.target.width + 8) + 'px;height:' + (p.target.height + 8) + 'px;' +
			'border:2px solid ' + p.color + ';border-radius:' + p.theme.border_radius + 'px;';
		root.appendChild(box);
		if (p.duration_ms > 0) {
			setTimeout(function () { box.remove(); }, p.duration_ms);
		}
		return;
	}

	var card = document.createElement('div');
	card.className = 'tourguide-card';
	card.style.cssText =
		'position:absolute;pointer-events:auto;box-sizing:border-box;' +
		'max-width:320px;padding:16px;' +
		'background:' + p.theme.background_color + ';color:' + p.theme.text_color + ';' +
		'border-radius:' + p.theme.border_radius + 'px;' +
		'box-shadow:0 4px 24px rgba(0,0,0,0.25);font:14px/1.45 system-ui,sans-serif;';
	var html = '';
	if (p.title) { html += '<div style="font-weight:600;margin-bottom:6px;">' + esc(p.title) + '</div>'; }
	if (p.description) { html += '<div>' + esc(p.description) + '</div>'; }
	if (p.instructions) { html += '<div style="margin-top:6px;opacity:0.8;">' + esc(p.instructions) + '</div>'; }
	if (p.image) { html += '<img src="' + encodeURI(p.image) + '" style="max-width:100%%;margin-top:8px;">'; }
	if (p.show_next_button) {
		html += '<button class="tourguide-next" style="margin-top:10px;padding:6px 14px;border:0;' +
			'border-radius:' + p.theme.border_radius + 'px;background:' + p.theme.primary_color +
			';color:#fff;cursor:pointer;">Next</button>';
	}
	card.innerHTML = html;

	if (p.kind === 'modal') {
		var dim = document.createElement('div');
		dim.style.cssText = 'position:absolute;inset:0;background:rgba(0,0,0,0.45);pointer-events:auto;';
		root.appendChild(dim);
		card.style.left = '50%%';
		card.style.top = '50%%';
		card.style.transform = 'translate(-50%%, -50%%)';
		root.appendChild(card);
		return;
	}

	card.style.left = p.x + 'px';
	card.style.top = p.y + 'px';
	var arrow = document.createElement('div');
	arrow.style.cssText = 'position:absolute;width:10px;height:10px;transform:rotate(45deg);' +
		'background:' + p.theme.background_color + ';';
	if (p.side === 'top') { arrow.style.bottom = '-5px'; arrow.style.left = (p.arrow_offset - 5) + 'px'; }
	else if (p.side === 'bottom') { arrow.style.top = '-5px'; arrow.style.left = (p.arrow_offset - 5) + 'px'; }
	else if (p.side === 'left') { arrow.style.right = '-5px'; arrow.style.top = (p.arrow_offset - 5) + 'px'; }
	else { arrow.style.left = '-5px'; arrow.style.top = (p.arrow_offset - 5) + 'px'; }
	card.appendChild(arrow);
	root.appendChild(card);
})(%s);`
