package payment

import (
	"strings"

	"thefesta/models"
)

// NormalizedStatus is the canonical status vocabulary. Every aggregator
// status string is mapped through one table here so the rest of the system
// never sees provider-specific wording.
type NormalizedStatus string

const (
	StatusPending   NormalizedStatus = "pending"
	StatusCompleted NormalizedStatus = "completed"
	StatusFailed    NormalizedStatus = "failed"
	StatusCancelled NormalizedStatus = "cancelled"
)

var providerStatusTable = map[string]NormalizedStatus{
	"PendingConfirmation": StatusPending,
	"PendingValidation":   StatusPending,
	"Queued":              StatusPending,
	"Sent":                StatusPending,
	"Success":             StatusCompleted,
	"Completed":           StatusCompleted,
	"Failed":              StatusFailed,
	"Cancelled":           StatusCancelled,
	"Reversed":            StatusFailed,
}

// MapProviderStatus translates an aggregator status string. Unknown vocab
// maps to failed rather than pending so a new provider status can never
// leave a payment stuck.
func MapProviderStatus(status string) NormalizedStatus {
	if s, ok := providerStatusTable[status]; ok {
		return s
	}
	return StatusFailed
}

// telco prefix → network, per the Tanzanian number plan.
var telcoPrefixes = map[string]models.PaymentMethod{
	"+25574": models.MethodMPesa,
	"+25575": models.MethodMPesa,
	"+25576": models.MethodMPesa,
	"+25578": models.MethodAirtelMoney,
	"+25568": models.MethodAirtelMoney,
	"+25569": models.MethodAirtelMoney,
	"+25571": models.MethodTigoPesa,
	"+25572": models.MethodTigoPesa,
	"+25573": models.MethodTigoPesa,
	"+25562": models.MethodHaloPesa,
	"+25563": models.MethodHaloPesa,
	"+25564": models.MethodHaloPesa,
	"+25565": models.MethodHaloPesa,
}

// MethodForPhone infers the mobile-money network from a phone number
// prefix. Returns false when the prefix is not recognised.
func MethodForPhone(phone string) (models.PaymentMethod, bool) {
	for prefix, method := range telcoPrefixes {
		if strings.HasPrefix(phone, prefix) {
			return method, true
		}
	}
	return "", false
}
