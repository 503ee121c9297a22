package models

import "time"

// IdempotencyRecord stores the outcome of an already-executed operation so
// repeated deliveries of the same key short-circuit to the stored result.
// Records expire via a TTL index on createdAt (48h by default), comfortably
// longer than the aggregator's redelivery window.
type IdempotencyRecord struct {
	Key       string    `bson:"key" json:"key"`
	Result    []byte    `bson:"result" json:"result"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
