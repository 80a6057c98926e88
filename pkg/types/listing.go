package types

import (
	"encoding/json"
	"errors"
	"strings"
)

// Listing status values
const (
	StatusActive    = "active"
	StatusWithdrawn = "withdrawn"
)

// Moderation score tags
const (
	TagHide       = "Hide"
	TagDelete     = "Delete"
	TagLowQuality = "LowQuality"
	TagFeatured   = "Featured"
)

// HiddenScoreTags lists the tags that remove a listing from every search.
var HiddenScoreTags = []string{TagHide, TagDelete}

// Price is a listing price in its own currency
type Price struct {
	Amount   string      `json:"amount"` // Decimal string, e.g. "0.25"
	Currency CurrencyKey `json:"currency"`
}

// Media is a picture or file attached to a listing
type Media struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// Offer is a purchase offer made against a listing
type Offer struct {
	ID       string          `json:"id"`
	Status   string          `json:"status,omitempty"`
	Quantity int             `json:"quantity,omitempty"`
	Schedule json.RawMessage `json:"schedule,omitempty"` // Per-offer booking slots
	Payload  json.RawMessage `json:"payload,omitempty"`  // Raw offer data from the chain event
}

// Listing is a marketplace listing as stored in the document index
type Listing struct {
	// Identification
	ID string `json:"id"`

	// Content
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Category          string  `json:"category"`
	SubCategory       string  `json:"subCategory"`
	Price             Price   `json:"price"`
	CommissionPerUnit string  `json:"commissionPerUnit,omitempty"`
	Media             []Media `json:"media,omitempty"`

	// State
	Status    string `json:"status,omitempty"`
	Valid     bool   `json:"valid"`
	CreatedAt *int64 `json:"createdAt,omitempty"` // Unix seconds

	// Moderation and ranking
	ScoreTags       []string `json:"scoreTags,omitempty"`
	ScoreMultiplier *float64 `json:"scoreMultiplier,omitempty"` // Nil means not yet scored

	// Volatile data that the indexer strips before writing
	Availability json.RawMessage `json:"availability,omitempty"`
	IPFS         json.RawMessage `json:"ipfs,omitempty"`
	Offers       []Offer         `json:"offers,omitempty"`
}

// ListingView is the projection of a listing returned by search
type ListingView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
	Description string `json:"description"`
	Price       Price  `json:"price"`
}

// ListingViewFields are the document fields fetched for a ListingView
var ListingViewFields = []string{"id", "title", "category", "subCategory", "description", "price"}

// HasTag reports whether the listing carries the given score tag
func (l *Listing) HasTag(tag string) bool {
	for _, t := range l.ScoreTags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsHidden reports whether moderation removed the listing from search
func (l *Listing) IsHidden() bool {
	for _, tag := range HiddenScoreTags {
		if l.HasTag(tag) {
			return true
		}
	}
	return false
}

// Multiplier returns the stored score multiplier, treating a missing value as 1
func (l *Listing) Multiplier() float64 {
	if l.ScoreMultiplier == nil {
		return 1.0
	}
	return *l.ScoreMultiplier
}

// View projects the listing to the fields returned by search
func (l *Listing) View() ListingView {
	return ListingView{
		ID:          l.ID,
		Title:       l.Title,
		Category:    l.Category,
		SubCategory: l.SubCategory,
		Description: l.Description,
		Price:       l.Price,
	}
}

// Validate checks the fields every indexed listing must carry
func (l *Listing) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return errors.New("listing ID is required")
	}
	if l.Price.Currency != "" && !l.Price.Currency.Valid() {
		return ErrUnsupportedCurrency
	}
	if l.ScoreMultiplier != nil && *l.ScoreMultiplier < 0 {
		return errors.New("score multiplier must be non-negative")
	}
	return nil
}
