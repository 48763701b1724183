package model

import "time"

// Item is a catalogue entry from the `items` table. Items are the simplest
// permission-guarded resource: everybody with READ_ITEMS can browse them,
// only holders of the write permissions can change them.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
