package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorItemNotFound indicates the menu item does not exist.
	InventoryErrorItemNotFound InventoryErrorCode = "inventory_item_not_found"
	// InventoryErrorUnavailable indicates the item's availability flag is off.
	InventoryErrorUnavailable InventoryErrorCode = "inventory_item_unavailable"
	// InventoryErrorOutOfStock indicates the item has zero stock remaining.
	InventoryErrorOutOfStock InventoryErrorCode = "inventory_out_of_stock"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
)

// InventoryError wraps stock-specific failures with machine readable codes
// and the offending menu item.
type InventoryError struct {
	Op         string
	Code       InventoryErrorCode
	MenuItemID string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error naming the menu item.
func NewInventoryError(code InventoryErrorCode, menuItemID string, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:       code,
		MenuItemID: menuItemID,
		Message:    message,
		Err:        err,
	}
}
