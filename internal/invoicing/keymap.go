package invoicing

import (
	"context"
	"strings"
	"sync"
)

// FocusTarget names the input that currently has focus.
type FocusTarget string

const (
	FocusNone         FocusTarget = ""
	FocusCounterparty FocusTarget = "counterparty"
	FocusProduct      FocusTarget = "product"
	FocusMainQuantity FocusTarget = "mainQuantity"
	FocusSubQuantity  FocusTarget = "subQuantity"
)

// Focus is the focused input; Row is ignored for header inputs.
type Focus struct {
	Row    int         `json:"row"`
	Target FocusTarget `json:"target"`
}

// KeyEvent is a key press delivered by the screen. A zero Focus means "wherever
// the engine last moved focus".
type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Focus *Focus `json:"focus,omitempty"`
}

// Combo renders the event as "ctrl+s", "enter", ...
func (ev KeyEvent) Combo() string {
	key := strings.ToLower(strings.TrimSpace(ev.Key))
	if ev.Ctrl {
		return "ctrl+" + key
	}
	return key
}

// KeyHandler handles a key event and reports whether it consumed it.
type KeyHandler func(ctx context.Context, ev KeyEvent) (bool, error)

// Keymap is the listener registry of one screen. Listeners register for the
// lifetime of their owner and must deregister when it is torn down.
type Keymap struct {
	mu       sync.Mutex
	next     int
	order    []int
	handlers map[int]KeyHandler
}

// NewKeymap returns an empty keymap.
func NewKeymap() *Keymap {
	return &Keymap{handlers: make(map[int]KeyHandler)}
}

// Register adds h and returns the function that removes it again.
func (k *Keymap) Register(h KeyHandler) (unregister func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.next++
	id := k.next
	k.handlers[id] = h
	k.order = append(k.order, id)
	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			defer k.mu.Unlock()
			delete(k.handlers, id)
			for i, v := range k.order {
				if v == id {
					k.order = append(k.order[:i], k.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of registered listeners.
func (k *Keymap) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.handlers)
}

// Dispatch offers ev to the listeners in registration order until one consumes it.
func (k *Keymap) Dispatch(ctx context.Context, ev KeyEvent) (bool, error) {
	k.mu.Lock()
	handlers := make([]KeyHandler, 0, len(k.order))
	for _, id := range k.order {
		handlers = append(handlers, k.handlers[id])
	}
	k.mu.Unlock()

	for _, h := range handlers {
		handled, err := h(ctx, ev)
		if handled || err != nil {
			return handled, err
		}
	}
	return false, nil
}

// HandleKey dispatches ev to the engine's shortcuts directly.
func (e *Engine) HandleKey(ctx context.Context, ev KeyEvent) (bool, error) {
	return e.handleKey(ctx, ev)
}

func (e *Engine) handleKey(ctx context.Context, ev KeyEvent) (bool, error) {
	if e.closed {
		return false, nil
	}
	focus := e.focus
	if ev.Focus != nil {
		focus = *ev.Focus
	}
	switch ev.Combo() {
	case "ctrl+s":
		_, err := e.Commit(ctx, false)
		return true, err
	case "ctrl+p":
		_, err := e.Commit(ctx, true)
		return true, err
	case "enter":
		switch focus.Target {
		case FocusMainQuantity, FocusSubQuantity:
			if focus.Row == e.Len()-1 {
				e.AddRow()
				return true, nil
			}
		case FocusProduct:
			e.AddRow()
			return true, nil
		}
	}
	return false, nil
}
