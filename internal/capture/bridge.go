// Package capture receives authoring-time element captures from a page.
//
// A capture session is established with a one-time token; every message
// must echo it. Messages arrive over a websocket or, as a fallback, as a
// clipboard JSON blob pasted into the authoring UI.
package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/jkallio/tourguide/internal/dom"
	"github.com/jkallio/tourguide/pkg/api"
)

// MessageType identifies a capture protocol message.
type MessageType string

const (
	// TypeReady is sent by the page once the capture script is installed.
	TypeReady MessageType = "TOUR_CAPTURE_READY"

	// TypeElement carries one picked element.
	TypeElement MessageType = "TOUR_CAPTURE_ELEMENT"

	// TypeScan carries the result of a whole-page interactive-element scan.
	TypeScan MessageType = "TOUR_CAPTURE_SCAN"

	// TypeStep carries a fully authored step draft.
	TypeStep MessageType = "TOUR_CAPTURE_STEP"
)

// CapturedElement describes one element picked or scanned on a page.
type CapturedElement struct {
	Selector string   `json:"selector"`
	Label    string   `json:"label,omitempty"`
	Tag      string   `json:"tag"`
	Rect     dom.Rect `json:"rect,omitempty"`
}

// Message is the capture protocol envelope.
type Message struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`

	Element  *CapturedElement  `json:"element,omitempty"`
	Elements []CapturedElement `json:"elements,omitempty"`
	Step     *api.Step         `json:"step,omitempty"`
}

// Handler consumes validated capture messages.
type Handler interface {
	OnReady()
	OnElement(el CapturedElement)
	OnScan(els []CapturedElement)
	OnStep(step api.Step)
}

// ErrTokenMismatch is not an exported sentinel on purpose: a bad token is
// ignored and counted, never surfaced to the page.
var errTokenMismatch = fmt.Errorf("capture token mismatch")

// Bridge validates and dispatches capture messages for one session.
type Bridge struct {
	token    string
	handler  Handler
	log      *slog.Logger
	upgrader websocket.Upgrader

	rejected atomic.Int64
}

// NewBridge creates a Bridge for one capture session token.
func NewBridge(token string, handler Handler, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		token:   token,
		handler: handler,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The capture script runs on the customer's origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Rejected returns how many messages were dropped for a bad token.
func (b *Bridge) Rejected() int64 {
	return b.rejected.Load()
}

// Handle decodes one raw message, validates its token and dispatches it.
// Token mismatches are counted and reported as an error to the caller but
// must not tear down the transport.
func (b *Bridge) Handle(raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode capture message: %w", err)
	}
	return b.dispatch(msg)
}

func (b *Bridge) dispatch(msg Message) error {
	if msg.Token != b.token {
		b.rejected.Add(1)
		b.log.Warn("capture message rejected",
			slog.String("type", string(msg.Type)))
		return errTokenMismatch
	}

	switch msg.Type {
	case TypeReady:
		b.handler.OnReady()
	case TypeElement:
		if msg.Element == nil {
			return fmt.Errorf("%s without element payload", msg.Type)
		}
		b.handler.OnElement(*msg.Element)
	case TypeScan:
		b.handler.OnScan(msg.Elements)
	case TypeStep:
		if msg.Step == nil {
			return fmt.Errorf("%s without step payload", msg.Type)
		}
		b.handler.OnStep(*msg.Step)
	default:
		return fmt.Errorf("unknown capture message type %q", msg.Type)
	}
	return nil
}

// ServeWS upgrades the request to a websocket and pumps messages into the
// bridge until the peer closes. Per-message errors are logged, not fatal.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("capture websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.log.Warn("capture websocket closed", slog.Any("error", err))
			}
			return
		}
		if err := b.Handle(raw); err != nil {
			b.log.Debug("capture message dropped", slog.Any("error", err))
		}
	}
}

// DecodeClipboard parses the clipboard fallback format: the same JSON
// envelope, copied out of the page when no websocket could connect.
func DecodeClipboard(data string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return Message{}, fmt.Errorf("clipboard payload is not a capture message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("clipboard payload has no message type")
	}
	return msg, nil
}

// HandleClipboard decodes a clipboard payload and dispatches it with the
// same token rules as the websocket path.
func (b *Bridge) HandleClipboard(data string) error {
	msg, err := DecodeClipboard(data)
	if err != nil {
		return err
	}
	return b.dispatch(msg)
}
