// Package model defines the core domain models used throughout the application.
package model

import "time"

// Message is a raw banking notification as delivered by the mail-ingestion
// collaborator. It is immutable input: this subsystem never mutates it.
type Message struct {
	ReceivedAt time.Time `json:"received_at"`
	ProviderID string    `json:"provider_id"` // provider-assigned identifier, unique per account
	AccountID  string    `json:"account_id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	TextBody   string    `json:"text_body"`
	HTMLBody   string    `json:"html_body"`
}
