package cart

// OrderVolume is the per-volume quantity sent to order placement.
type OrderVolume struct {
	Volume   string `json:"volume"`
	Quantity int    `json:"quantity"`
}

// OrderItem is the order placement payload for one product. The backend
// prices the order.
type OrderItem struct {
	ProductID string        `json:"productId"`
	Volume    []OrderVolume `json:"volume"`
}

// ToOrderItems maps cart line items to the order placement payload,
// merging duplicate products.
func ToOrderItems(items []LineItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		pos, ok := index[item.ProductID]
		if !ok {
			pos = len(out)
			index[item.ProductID] = pos
			out = append(out, OrderItem{ProductID: item.ProductID, Volume: []OrderVolume{}})
		}
		for _, v := range item.Volumes {
			out[pos].Volume = append(out[pos].Volume, OrderVolume{
				Volume:   v.Volume,
				Quantity: v.Quantity,
			})
		}
	}

	return out
}
