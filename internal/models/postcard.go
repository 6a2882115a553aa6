// Package models defines the domain types for the postcards service.
package models

import "time"

// Postcard is a saved scripture reference with personal notes attached.
type Postcard struct {
	ID               string    `json:"id"`
	Reference        string    `json:"reference"`
	Text             string    `json:"text"`
	Tags             []string  `json:"tags"`
	Commentary       *string   `json:"commentary"`
	PersonalThoughts *string   `json:"personalThoughts"`
	Questions        *string   `json:"questions"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// VerseLookupResult is the normalized answer of the verse upstream. It is never stored.
type VerseLookupResult struct {
	Reference   string `json:"reference"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
}
