package entity

// CartLineItem is one (product, unit) entry of a cart. ServerID is empty while
// the line exists only on the client. PendingQuantity is the part of Quantity
// the server line ServerID has not seen yet; it is negative after a local
// decrease and is never set by the server.
type CartLineItem struct {
	ServerID         string  `json:"serverId,omitempty"`
	ProductID        string  `json:"productId"`
	Quantity         float64 `json:"quantity"`
	Unit             Unit    `json:"unit"`
	UnitPriceAtTime  float64 `json:"unitPriceAtTime"`
	TotalPriceAtTime float64 `json:"totalPriceAtTime"`
	PendingQuantity  float64 `json:"pendingQuantity,omitempty"`
}

// Unsynced returns the quantity the server still has to receive for this line:
// the whole line when it has no server id, otherwise the pending delta.
func (l CartLineItem) Unsynced() float64 {
	if l.ServerID == "" {
		return l.Quantity
	}
	return l.PendingQuantity
}

// LineKey identifies a cart line. A cart holds at most one line per key.
type LineKey struct {
	ProductID string
	Unit      Unit
}

func (l CartLineItem) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Unit: l.Unit}
}

// CartItemRequest is the payload of add and merge requests.
type CartItemRequest struct {
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
	Unit      Unit    `json:"unit"`
}

type MergeRequest struct {
	Items []CartItemRequest `json:"items"`
}

/*
Schema MySQL for cart_lines table (sharded by session):
CREATE TABLE cart_lines (
  id BIGINT AUTO_INCREMENT PRIMARY KEY,
  session_id VARCHAR(64) NOT NULL,
  product_id VARCHAR(64) NOT NULL,
  unit VARCHAR(10) NOT NULL,
  quantity DOUBLE NOT NULL,
  unit_price DOUBLE NOT NULL,
  total_price DOUBLE NOT NULL,
  UNIQUE KEY session_product_unit (session_id, product_id, unit)
);
*/
