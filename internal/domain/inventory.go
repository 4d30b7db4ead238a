package domain

// StockLevel is the per-SKU inventory position. Available counts sellable
// units, Reserved counts units held for pending orders.
type StockLevel struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

// StockCommitLine is one line of a transactional multi-line commit, moving
// reserved units out of inventory once payment is captured.
type StockCommitLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}
