package cart

// VolumeOption is one package-size variant offered by a product.
type VolumeOption struct {
	Volume       string  `json:"volume"`
	IsDefault    bool    `json:"isDefault"`
	SalePrice    float64 `json:"salePrice"`
	RegularPrice float64 `json:"regularPrice"`
}

// UnitPrice resolves the price charged for one unit of this volume.
// A sale price of exactly 0 means "no sale", never "free".
func (o VolumeOption) UnitPrice() float64 {
	if o.SalePrice != 0 {
		return o.SalePrice
	}
	return o.RegularPrice
}

// Candidate is the product-like input accepted by AddItem and RemoveItem.
type Candidate struct {
	ProductID     string         `json:"_id"`
	Name          string         `json:"name"`
	Images        []string       `json:"images"`
	VolumeOptions []VolumeOption `json:"volume"`
}

type VolumeEntry struct {
	Volume   string  `json:"volume"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// LineItem aggregates every volume variant of one product in the cart.
type LineItem struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Images    []string      `json:"images"`
	Volumes   []VolumeEntry `json:"volume"`
}

// Subtotal is Σ price × quantity over the item's volume entries.
func (li LineItem) Subtotal() float64 {
	var sum float64
	for _, v := range li.Volumes {
		sum += v.Price * float64(v.Quantity)
	}
	return sum
}

func (li LineItem) volumeIndex(volume string) int {
	for i, v := range li.Volumes {
		if v.Volume == volume {
			return i
		}
	}
	return -1
}

// State is an immutable snapshot of the cart handed to callers.
type State struct {
	Items []LineItem `json:"list"`
	Total float64    `json:"total"`
}

// ItemCount sums quantities across every volume entry.
func (s State) ItemCount() int {
	var n int
	for _, item := range s.Items {
		for _, v := range item.Volumes {
			n += v.Quantity
		}
	}
	return n
}

// Contains reports whether the product has at least one volume in the cart.
func (s State) Contains(productID string) bool {
	return indexOf(s.Items, productID) >= 0
}

// CalculateTotal recomputes the cart total from scratch.
func CalculateTotal(items []LineItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.Subtotal()
	}
	return sum
}

func indexOf(items []LineItem, productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func cloneItems(items []LineItem) []LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = item
		out[i].Images = append([]string(nil), item.Images...)
		out[i].Volumes = append([]VolumeEntry(nil), item.Volumes...)
	}
	return out
}
