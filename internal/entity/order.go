package entity

import "time"

const (
	OrderStatusCreated   = "created"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID            int64       `json:"id"`
	OrderRef      string      `json:"orderRef"`
	SessionID     string      `json:"sessionId"`
	Lines         []OrderLine `json:"lines"`
	Total         float64     `json:"total"`
	Status        string      `json:"status"` // e.g., "created", "cancelled"
	IdempotentKey string      `json:"idempotentKey,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

type OrderLine struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	Unit      Unit    `json:"unit"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

/*
Mysql Table

CREATE TABLE orders (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	order_ref VARCHAR(36) NOT NULL UNIQUE,
	session_id VARCHAR(64) NOT NULL,
	...

CREATE TABLE order_lines (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	product_id VARCHAR(64) NOT NULL,
	...
);

*/
