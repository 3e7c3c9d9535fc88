package domain

import "time"

// Meta carries the fields every stored record shares. The store owns
// CreatedAt, UpdatedAt and Revision; callers never set them directly.
type Meta struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Revision  int64     `json:"revision"`
}

// Metadata returns the shared record fields.
func (m Meta) Metadata() Meta { return m }

// Record is implemented by every entity type through its embedded Meta.
type Record interface {
	Metadata() Meta
}
