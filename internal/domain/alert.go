package domain

type AlertCategory string

const (
	AlertLowStock     AlertCategory = "LOW_STOCK"
	AlertOutOfStock   AlertCategory = "OUT_OF_STOCK"
	AlertNeedsReorder AlertCategory = "NEEDS_REORDER"
)

var AlertCategories = []AlertCategory{AlertLowStock, AlertOutOfStock, AlertNeedsReorder}

type StockAlert struct {
	ProductID        string        `json:"productId"`
	CurrentAvailable int           `json:"currentAvailable"`
	Threshold        int           `json:"threshold"`
	Category         AlertCategory `json:"category"`
}

// ClassifyStock returns every category the item falls into. One item may
// produce all three alerts.
func ClassifyStock(item StockItem) []StockAlert {
	available := item.Available()
	var alerts []StockAlert
	if available <= item.MinStockLevel {
		alerts = append(alerts, StockAlert{item.ProductID, available, item.MinStockLevel, AlertLowStock})
	}
	if available <= 0 {
		alerts = append(alerts, StockAlert{item.ProductID, available, 0, AlertOutOfStock})
	}
	if available <= item.ReorderPoint {
		alerts = append(alerts, StockAlert{item.ProductID, available, item.ReorderPoint, AlertNeedsReorder})
	}
	return alerts
}
