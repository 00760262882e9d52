package models

import "time"

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeStockReserved  = "STOCK_RESERVED"
	EventTypeStockDeducted  = "STOCK_DEDUCTED"
	EventTypeStockReleased  = "STOCK_RELEASED"
	EventTypeStockLowAlert  = "STOCK_LOW_ALERT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData is one order line in an order event; combo children nest.
type OrderLineData struct {
	MenuItemID         string          `json:"menu_item_id"`
	Quantity           int             `json:"quantity"`
	SelectedVariantIDs []string        `json:"selected_variant_ids,omitempty"`
	Children           []OrderLineData `json:"children,omitempty"`
}

// OrderCreatedEvent is consumed to reserve stock for a new order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	StoreID string          `json:"store_id"`
	Lines   []OrderLineData `json:"lines"`
}

// OrderPaidEvent is consumed to commit an order's reservation
type OrderPaidEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	StoreID string `json:"store_id"`
}

// OrderCancelledEvent is consumed to release or reverse an order's stock
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	StoreID string `json:"store_id"`
	Reason  string `json:"reason,omitempty"`
}

// StockReservedEvent published after a successful reservation
type StockReservedEvent struct {
	BaseEvent
	OrderID string           `json:"order_id"`
	Lines   []CompiledRecipe `json:"lines"`
}

// StockDeductedEvent published after a reservation is committed
type StockDeductedEvent struct {
	BaseEvent
	OrderID string         `json:"order_id"`
	Entries []InventoryLog `json:"entries"`
}

// StockReleasedEvent published after a reservation is released
type StockReleasedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

// LowStockAlert is the fire-and-forget notification emitted when a mutation
// drops currentStock below minStock.
type LowStockAlert struct {
	BaseEvent
	ItemID             string `json:"item_id"`
	ItemName           string `json:"item_name"`
	StoreID            string `json:"store_id"`
	CurrentStock       int    `json:"current_stock"`
	MinStock           int    `json:"min_stock"`
	RecommendedRestock int    `json:"recommended_restock"`
}
