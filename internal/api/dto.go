package api

import (
	"encoding/json"

	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/postcards"
)

// PostcardRequest is the body of POST /postcards and PUT /postcards/{id}.
type PostcardRequest struct {
	Reference        string          `json:"reference" example:"John 3:16" validate:"required"`
	Text             string          `json:"text" example:"For God so loved the world..." validate:"required"`
	Tags             json.RawMessage `json:"tags,omitempty" swaggertype:"array,string" example:"love,gospel"`
	Commentary       *string         `json:"commentary,omitempty"`
	PersonalThoughts *string         `json:"personalThoughts,omitempty"`
	Questions        *string         `json:"questions,omitempty"`
}

// input converts the request into service input. Tags that are absent or not a
// list of strings become an empty list.
func (r PostcardRequest) input() postcards.Input {
	var tags []string
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &tags); err != nil {
			tags = nil
		}
	}
	if tags == nil {
		tags = []string{}
	}
	return postcards.Input{
		Reference:        r.Reference,
		Text:             r.Text,
		Tags:             tags,
		Commentary:       r.Commentary,
		PersonalThoughts: r.PersonalThoughts,
		Questions:        r.Questions,
	}
}

// LookupRequest is the body of POST /verses/lookup. Reference is untyped so a
// non-string value can be reported as invalid rather than as malformed JSON.
type LookupRequest struct {
	Reference any `json:"reference" swaggertype:"string" example:"John 3:16" validate:"required"`
}

// Postcard is the stored record returned by the API.
type Postcard = models.Postcard

// VerseLookupResult is the normalized lookup answer.
type VerseLookupResult = models.VerseLookupResult

// OKResponse acknowledges a delete.
type OKResponse struct {
	OK bool `json:"ok" example:"true" validate:"required"`
}
