package models

import "time"

// Inventory units. Quantities are integers in the item's base unit,
// no implicit conversion between units.
const (
	UnitGram       = "GRAM"
	UnitKilogram   = "KILOGRAM"
	UnitMilliliter = "MILLILITER"
	UnitLiter      = "LITER"
	UnitPiece      = "PIECE"
)

// Inventory change types. RESERVATION and RELEASE move reservedStock only;
// every other type moves currentStock.
const (
	ChangeTypeReservation       = "RESERVATION"
	ChangeTypeOrderDeduction    = "ORDER_DEDUCTION"
	ChangeTypeRelease           = "RELEASE"
	ChangeTypeRestock           = "RESTOCK"
	ChangeTypeManualAdjustment  = "MANUAL_ADJUSTMENT"
	ChangeTypeOrderCancellation = "ORDER_CANCELLATION"
	ChangeTypeWastage           = "WASTAGE"
)

// Reservation statuses
const (
	ReservationStatusActive    = "ACTIVE"
	ReservationStatusCommitted = "COMMITTED"
	ReservationStatusReleased  = "RELEASED"
	ReservationStatusCancelled = "CANCELLED"
)

// Variant is a selectable attribute value (e.g. "Large", "Extra Shot")
// referenced by recipe conditions. Read-only to this engine.
type Variant struct {
	ID       string `db:"id" json:"id"`
	StoreID  string `db:"store_id" json:"store_id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Recipe states how much of one inventory item an ordered menu item consumes.
// A nil MenuItemID means the recipe is global and applies to every menu item.
type Recipe struct {
	ID               string    `db:"id" json:"id"`
	StoreID          string    `db:"store_id" json:"store_id"`
	MenuItemID       *string   `db:"menu_item_id" json:"menu_item_id,omitempty"`
	InventoryItemID  string    `db:"inventory_item_id" json:"inventory_item_id"`
	QuantityRequired int       `db:"quantity_required" json:"quantity_required"`
	Unit             string    `db:"unit" json:"unit"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// RecipeCondition requires a variant to be selected for the recipe to fire.
// Multiple conditions on one recipe combine with AND.
type RecipeCondition struct {
	ID        string `db:"id" json:"id"`
	RecipeID  string `db:"recipe_id" json:"recipe_id"`
	VariantID string `db:"variant_id" json:"variant_id"`
}

// InventoryItem is the per-ingredient stock row. currentStock - reservedStock
// is the quantity available to new reservations.
type InventoryItem struct {
	ID            string    `db:"id" json:"id"`
	StoreID       string    `db:"store_id" json:"store_id"`
	Name          string    `db:"name" json:"name"`
	Unit          string    `db:"unit" json:"unit"`
	CurrentStock  int       `db:"current_stock" json:"current_stock"`
	ReservedStock int       `db:"reserved_stock" json:"reserved_stock"`
	MinStock      int       `db:"min_stock" json:"min_stock"`
	MaxStock      *int      `db:"max_stock" json:"max_stock,omitempty"`
	CostPerUnit   int       `db:"cost_per_unit" json:"cost_per_unit"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Available returns the stock offered to new reservations.
func (i *InventoryItem) Available() int {
	return i.CurrentStock - i.ReservedStock
}

// InventoryLog is one append-only audit entry. QuantityChanged always equals
// NewStock - PreviousStock of currentStock, so replaying an item's log in
// created_at order reconstructs currentStock exactly. Reservation holds do
// not move currentStock, so RESERVATION/RELEASE rows carry QuantityChanged 0
// with the held quantity recorded in Reason.
type InventoryLog struct {
	ID              string    `db:"id" json:"id"`
	InventoryItemID string    `db:"inventory_item_id" json:"inventory_item_id"`
	ChangeType      string    `db:"change_type" json:"change_type"`
	QuantityChanged int       `db:"quantity_changed" json:"quantity_changed"`
	PreviousStock   int       `db:"previous_stock" json:"previous_stock"`
	NewStock        int       `db:"new_stock" json:"new_stock"`
	Reason          string    `db:"reason" json:"reason,omitempty"`
	PerformedBy     string    `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// StockReservation is one item-level hold belonging to an order. Commit and
// Release operate on an order's ACTIVE rows.
type StockReservation struct {
	ID              string    `db:"id" json:"id"`
	OrderID         string    `db:"order_id" json:"order_id"`
	InventoryItemID string    `db:"inventory_item_id" json:"inventory_item_id"`
	Quantity        int       `db:"quantity" json:"quantity"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// AppliedRecipe records one recipe that contributed to a compiled total,
// annotated with the condition variants that triggered it.
type AppliedRecipe struct {
	RecipeID         string   `json:"recipe_id"`
	QuantityRequired int      `json:"quantity_required"`
	RequiredVariants []string `json:"required_variants,omitempty"`
}

// CompiledRecipe is the resolved deduction requirement for one inventory
// item, derived at order time. Never persisted.
type CompiledRecipe struct {
	InventoryItemID   string          `json:"inventory_item_id"`
	InventoryItemName string          `json:"inventory_item_name"`
	TotalQuantity     int             `json:"total_quantity"`
	Unit              string          `json:"unit"`
	Recipes           []AppliedRecipe `json:"recipes"`
}

// Manifest is the flattened per-inventory-item deduction request produced by
// expanding one order line, combo children included.
type Manifest struct {
	Lines []CompiledRecipe `json:"lines"`
}

// IsEmpty reports whether the manifest requests nothing.
func (m *Manifest) IsEmpty() bool {
	return len(m.Lines) == 0
}

// Shortfall describes one inventory item that could not cover a reservation.
type Shortfall struct {
	InventoryItemID string `json:"inventory_item_id"`
	Requested       int    `json:"requested"`
	Available       int    `json:"available"`
}
