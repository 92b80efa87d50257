package composer

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

type createSessionRequest struct {
	Kind string `json:"kind" validate:"required,oneof=sales purchase"`
}

// headerRequest patches only the fields that are present.
type headerRequest struct {
	Date        *string `json:"date" validate:"omitempty"`
	Time        *string `json:"time" validate:"omitempty"`
	PaymentType *string `json:"payment_type" validate:"omitempty,oneof=cash deferred partial"`
	AgentType   *string `json:"agent_type" validate:"omitempty,oneof=none invoice carton"`
	Notes       *string `json:"notes" validate:"omitempty,max=1000"`
}

type searchRequest struct {
	Text string `json:"text" validate:"max=200"`
}

type selectRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

type fieldRequest struct {
	Field string          `json:"field" validate:"required,oneof=mainQuantity subQuantity mainPrice subPrice"`
	Value decimal.Decimal `json:"value"`
}

type focusRequest struct {
	Row    int    `json:"row" validate:"gte=0"`
	Target string `json:"target" validate:"omitempty,oneof=counterparty product mainQuantity subQuantity"`
}

type keyRequest struct {
	Key   string        `json:"key" validate:"required,max=32"`
	Ctrl  bool          `json:"ctrl"`
	Focus *focusRequest `json:"focus" validate:"omitempty"`
}

func (k keyRequest) event() invoicing.KeyEvent {
	ev := invoicing.KeyEvent{Key: k.Key, Ctrl: k.Ctrl}
	if k.Focus != nil {
		ev.Focus = &invoicing.Focus{Row: k.Focus.Row, Target: invoicing.FocusTarget(k.Focus.Target)}
	}
	return ev
}

type commitRequest struct {
	Print bool `json:"print"`
}

type keyResponse struct {
	Handled bool `json:"handled"`
	View
}

type removeResponse struct {
	Removed bool `json:"removed"`
	View
}

// fieldErrors flattens validator output into a field to message map.
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["body"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fe.Error()
	}
	return out
}
