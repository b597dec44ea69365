package ticket

import (
	"encoding/json"
	"time"
)

// Order is the confirmed ticket order as delivered by the voice platform.
// Every field except OrderID is optional.
type Order struct {
	OrderID         string     `json:"order_id"`
	CallID          string     `json:"call_id,omitempty"`
	RestaurantName  string     `json:"restaurant_name,omitempty"`
	RestaurantPhone string     `json:"restaurant_phone,omitempty"`
	OrderNumber     string     `json:"order_number,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	Fulfillment     string     `json:"fulfillment,omitempty"`
	Items           []LineItem `json:"items,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Allergies       string     `json:"allergies,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	CustomerAddress string     `json:"customer_address,omitempty"`
	Total           *Total     `json:"total,omitempty"`
	PrinterTarget   string     `json:"printer_target,omitempty"`
}

type LineItem struct {
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Modifier is either a plain string ("extra cheese") or a name with its own
// quantity; the JSON form accepts both.
type Modifier struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
}

type Total struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

// UnmarshalJSON accepts both `"extra cheese"` and `{"name":...,"quantity":...}`.
func (m *Modifier) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		m.Name = s
		m.Quantity = 0
		return nil
	}
	type alias Modifier
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Modifier(a)
	return nil
}
