package storage

import "testing"

func TestBuildMenuImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeMenuImage, PathParams{
		MenuItemID: "menu_abc123",
		FileName:   "01JX0000000000000000000000",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "menu-images/menu_abc123/01JX0000000000000000000000"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildReceiptPathUsesOrderNumber(t *testing.T) {
	path, err := BuildObjectPath(PurposeReceipt, PathParams{
		OrderID:     "ord_123",
		OrderNumber: "IC-20250601-7G2K",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "receipts/orders/ord_123/IC-20250601-7G2K.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeMenuImage, PathParams{
		MenuItemID: "../bad",
		FileName:   "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBuildObjectPathRejectsUnknownPurpose(t *testing.T) {
	if _, err := BuildObjectPath(AssetPurpose("mystery"), PathParams{}); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
