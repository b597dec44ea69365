package ticket

import (
	"fmt"
	"math"
	"strings"
)

// LineWidth is the character width of the thermal printer.
const LineWidth = 42

const footer = "Printed automatically via Phone Assistant"

// Render produces the fixed-width ticket text for an order. Pure function:
// no line exceeds LineWidth characters and absent optional fields are
// omitted entirely.
func Render(o *Order) string {
	var lines []string

	if o.RestaurantName != "" {
		lines = append(lines, wrap(o.RestaurantName)...)
	}
	if o.RestaurantPhone != "" {
		lines = append(lines, wrap(o.RestaurantPhone)...)
	}
	if o.OrderNumber != "" {
		lines = append(lines, truncate("ORDER #"+o.OrderNumber))
	}
	lines = append(lines, "CONFIRMED BY PHONE")
	if o.ConfirmedAt != nil {
		lines = append(lines, wrap("Time: "+o.ConfirmedAt.Format("Jan 2, 2006 3:04 PM"))...)
	}
	if o.Fulfillment != "" {
		lines = append(lines, truncate(fulfillmentLabel(o.Fulfillment)))
	}

	for _, item := range o.Items {
		name := item.Name
		if item.Quantity > 1 {
			name = fmt.Sprintf("%dx %s", item.Quantity, item.Name)
		}
		lines = append(lines, wrap(name)...)

		for _, mod := range item.Modifiers {
			if mod.Name == "" {
				continue
			}
			label := mod.Name
			if mod.Quantity > 1 {
				label = fmt.Sprintf("%dx %s", mod.Quantity, mod.Name)
			}
			lines = append(lines, wrapIndent("- "+label, "  ")...)
		}
		if item.Notes != "" {
			lines = append(lines, wrap("Notes: "+item.Notes)...)
		}
	}

	if o.Notes != "" {
		lines = append(lines, wrap("Notes: "+o.Notes)...)
	}
	if o.Allergies != "" {
		lines = append(lines, wrap("Allergies: "+o.Allergies)...)
	}
	if o.CustomerName != "" {
		lines = append(lines, wrap("Customer: "+o.CustomerName)...)
	}
	if o.CustomerPhone != "" {
		lines = append(lines, wrap("Phone: "+o.CustomerPhone)...)
	}
	if o.CustomerAddress != "" {
		lines = append(lines, wrap("Address: "+o.CustomerAddress)...)
	}
	if o.Total != nil && !math.IsNaN(o.Total.Amount) && !math.IsInf(o.Total.Amount, 0) {
		total := fmt.Sprintf("TOTAL: %.2f", o.Total.Amount)
		if o.Total.Currency != "" {
			total += " " + o.Total.Currency
		}
		lines = append(lines, truncate(total))
	}

	lines = append(lines, footer)

	return strings.Join(lines, "\n")
}

func fulfillmentLabel(mode string) string {
	switch strings.ToLower(mode) {
	case "delivery":
		return "DELIVERY"
	case "pickup":
		return "PICKUP"
	default:
		return strings.ToUpper(mode)
	}
}

// wrap greedily word-wraps text to LineWidth. Words longer than the line
// width are hard-split.
func wrap(text string) []string {
	return wrapIndent(text, "")
}

func wrapIndent(text, contIndent string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	cur := ""

	indent := func() string {
		if len(lines) == 0 {
			return ""
		}
		return contIndent
	}

	for _, word := range words {
		// Hard-split words that cannot fit on a line of their own.
		for len(word) > LineWidth-len(contIndent) {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			in := indent()
			cut := LineWidth - len(in)
			lines = append(lines, in+word[:cut])
			word = word[cut:]
		}
		if word == "" {
			continue
		}
		switch {
		case cur == "":
			cur = indent() + word
		case len(cur)+1+len(word) <= LineWidth:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = contIndent + word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func truncate(line string) string {
	if len(line) > LineWidth {
		return line[:LineWidth]
	}
	return line
}
