package models

import "encoding/json"

// AlchemyWebhook is the address-activity notification envelope
type AlchemyWebhook struct {
	WebhookId string       `json:"webhookId"`
	Id        string       `json:"id"`
	CreatedAt string       `json:"createdAt"`
	Type      string       `json:"type"`
	Event     AlchemyEvent `json:"event"`
}

// AlchemyEvent keeps activity raw so a non-list value can be reported instead of rejected
type AlchemyEvent struct {
	Network  string          `json:"network"`
	Activity json.RawMessage `json:"activity"`
}

// Activity is a single transfer observed by the indexer
type Activity struct {
	Category    string          `json:"category"`
	FromAddress string          `json:"fromAddress"`
	ToAddress   string          `json:"toAddress"`
	Hash        string          `json:"hash"`
	Asset       string          `json:"asset"`
	Value       json.RawMessage `json:"value"`
	RawContract *RawContract    `json:"rawContract,omitempty"`
	Log         *ActivityLog    `json:"log,omitempty"`
}

// RawContract carries the token contract and the undivided transfer value
type RawContract struct {
	Address  string `json:"address"`
	RawValue string `json:"rawValue"`
	Decimals *int   `json:"decimals,omitempty"`
}

// ActivityLog is the raw event log behind an activity
type ActivityLog struct {
	Address string `json:"address"`
	Data    string `json:"data"`
}
