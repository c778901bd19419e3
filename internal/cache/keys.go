package cache

import "time"

const (
	// order_status:{order_id} -> {"order_id": "...", "status": "...", ...}
	KeyOrderStatus = "order_status:%s"
)

var TTLStatusCache = 5 * time.Minute
