// Package extract orchestrates one call to the LLM Client plus the
// Storage write that follows it — the shared path behind both the
// synchronous HTTP endpoints and the asynchronous extraction worker.
package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranaflow/kiranaflow/internal/llm"
	"github.com/kiranaflow/kiranaflow/internal/storage"
)

const (
	singleMessageToolName = "record_single_message_order"
	chatLogToolName       = "record_chat_order"
	defaultMaxTokens      = 1024
)

const systemPromptPrefix = "You extract a structured grocery order from customer text. " +
	"Never invent a price the text does not state. Quantities default to 1 when absent or invalid."

// Store is the subset of storage.Repository the extraction path needs.
type Store interface {
	AddOrder(ctx context.Context, rec storage.NewOrderRecord) (*storage.Order, error)
}

// Service ties the LLM Client to Storage.
type Service struct {
	LLM   *llm.Client
	Store Store
}

// New constructs an extraction Service.
func New(client *llm.Client, store Store) *Service {
	return &Service{LLM: client, Store: store}
}

// SingleMessage extracts and persists an order from one free-text message.
// Pruning is skipped, per the context-window discipline rule for
// single-message calls.
func (s *Service) SingleMessage(ctx context.Context, orgID, message string) (*storage.Order, error) {
	raw, err := s.LLM.Extract(ctx, systemPromptPrefix, message, singleMessageToolName, llm.SingleMessageToolSchema, defaultMaxTokens)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, orgID, raw, storage.ExtractionSingleMessage, []byte(`[]`))
}

// ChatLog extracts and persists an order from a pruned chat transcript.
func (s *Service) ChatLog(ctx context.Context, orgID string, messages []llm.Message) (*storage.Order, error) {
	pruned := llm.PruneMessages(messages, llm.DefaultContextCharBudget)
	rendered := llm.RenderChatLog(pruned)
	raw, err := s.LLM.Extract(ctx, systemPromptPrefix, rendered, chatLogToolName, llm.ChatOrderToolSchema, defaultMaxTokens)
	if err != nil {
		return nil, err
	}
	rawMessages, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("extract: encode raw messages: %w", err)
	}
	return s.persist(ctx, orgID, raw, storage.ExtractionChatLog, rawMessages)
}

func (s *Service) persist(ctx context.Context, orgID string, raw json.RawMessage, extractionType storage.ExtractionType, rawMessages []byte) (*storage.Order, error) {
	coerced, err := llm.Coerce(raw)
	if err != nil {
		return nil, fmt.Errorf("extract: coerce: %w", err)
	}

	items := make([]storage.OrderItem, 0, len(coerced.Items))
	var total int64
	for _, item := range coerced.Items {
		pricePs := int64(0)
		if item.Price != nil {
			pricePs = rupeesToPaise(*item.Price)
		}
		qty := 1.0
		if item.Quantity != nil {
			qty = *item.Quantity
		}
		totalPs := lineAmountPs(qty, pricePs)
		total += totalPs
		items = append(items, storage.OrderItem{
			ProductName:    item.ProductName,
			Quantity:       qty,
			PricePerUnitPs: pricePs,
			TotalPricePs:   totalPs,
		})
	}
	if coerced.Total != nil {
		total = rupeesToPaise(*coerced.Total)
	}

	order := storage.Order{
		OrgID:           orgID,
		ExtractionType:  extractionType,
		DeliveryAddress: coerced.DeliveryAddress,
		TotalAmountPs:   total,
		Status:          storage.OrderStatusPending,
		RawAIResponse:   raw,
		RawMessages:     rawMessages,
		Items:           items,
	}
	if coerced.ConfidenceScore != nil {
		order.ConfidenceScore = coerced.ConfidenceScore
	}
	if coerced.Confidence != "" {
		order.Confidence = storage.Confidence(coerced.Confidence)
	}

	return s.Store.AddOrder(ctx, storage.NewOrderRecord{
		Order:        order,
		CustomerName: coerced.CustomerName,
	})
}

func rupeesToPaise(rupees float64) int64 {
	return roundPs(rupees * 100)
}

func roundPs(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return -int64(-v + 0.5)
}

// qtyScale is the implied-decimals factor (3) quantity is scaled by before
// it ever meets price in a multiplication, matching invoice.Engine's
// approach: no binary-float multiplication of two money-shaped quantities.
const qtyScale = 1000

// lineAmountPs computes round(quantity * pricePs) in paise, scaling
// quantity to an integer fixed-point value first so the multiplication
// against pricePs happens entirely in int64.
func lineAmountPs(quantity float64, pricePs int64) int64 {
	milliPs := roundPs(quantity*qtyScale) * pricePs
	return roundHalfUpDiv(milliPs, qtyScale)
}

func roundHalfUpDiv(num, den int64) int64 {
	if den < 0 {
		num, den = -num, -den
	}
	if num >= 0 {
		return (num + den/2) / den
	}
	return -((-num + den/2) / den)
}
