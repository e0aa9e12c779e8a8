package llm

import "encoding/json"

// ExtractedItem is one line item as returned by the model, before the
// coercion rules in Coerce are applied.
type ExtractedItem struct {
	ProductName string   `json:"product_name"`
	Quantity    *float64 `json:"quantity"`
	Price       *float64 `json:"price"`
}

// ExtractedOrder is the tool-call input payload shape for both extraction
// endpoints. Confidence is a string ("high"|"medium"|"low") for chat-log
// calls and ConfidenceScore a 0..1 float for single-message calls; exactly
// one of the two is populated depending on which tool schema was used.
type ExtractedOrder struct {
	CustomerName    string          `json:"customer_name"`
	Items           []ExtractedItem `json:"items"`
	DeliveryAddress string          `json:"delivery_address"`
	Total           *float64        `json:"total"`
	Confidence      string          `json:"confidence"`
	ConfidenceScore *float64        `json:"confidence_score"`
}

// ChatOrderToolSchema is the JSON schema advertised to the model for chat-log
// extraction; confidence is an enum string.
var ChatOrderToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"customer_name": {"type": "string"},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"product_name": {"type": "string"},
					"quantity": {"type": "number"},
					"price": {"type": "number"}
				},
				"required": ["product_name"]
			}
		},
		"delivery_address": {"type": "string"},
		"total": {"type": "number"},
		"confidence": {"type": "string", "enum": ["high", "medium", "low"]}
	},
	"required": ["customer_name", "items"]
}`)

// SingleMessageToolSchema is the schema for single-message extraction;
// confidence is a numeric score instead of an enum.
var SingleMessageToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"customer_name": {"type": "string"},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"product_name": {"type": "string"},
					"quantity": {"type": "number"},
					"price": {"type": "number"}
				},
				"required": ["product_name"]
			}
		},
		"delivery_address": {"type": "string"},
		"total": {"type": "number"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["customer_name", "items"]
}`)

// Coerce applies the schema coercion rules to a raw tool-use payload:
// quantity defaults to 1 on missing/nonsensical values; price stays nil
// when absent (the client never invents prices); numeric confidence is
// clamped to [0,1]; an unrecognized confidence enum string falls back to
// "medium".
func Coerce(raw json.RawMessage) (ExtractedOrder, error) {
	var order ExtractedOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return ExtractedOrder{}, err
	}
	for i := range order.Items {
		q := order.Items[i].Quantity
		if q == nil || *q <= 0 {
			one := 1.0
			order.Items[i].Quantity = &one
		}
	}
	if order.ConfidenceScore != nil {
		clamped := clamp01(*order.ConfidenceScore)
		order.ConfidenceScore = &clamped
	}
	if order.Confidence != "" {
		switch order.Confidence {
		case "high", "medium", "low":
		default:
			order.Confidence = "medium"
		}
	}
	return order, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
