package models

import "time"

// CatchRecord is one logged fish catch. Optional fields are nil when the
// angler left them blank.
type CatchRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Species   string    `json:"species"`
	WeightKg  *float64  `json:"weightKg"`
	LengthCm  *float64  `json:"lengthCm"`
	Bait      *string   `json:"bait"`
	Notes     *string   `json:"notes"`
	PhotoURL  *string   `json:"photoUrl"`
	IsPublic  bool      `json:"isPublic"`
	CreatedAt time.Time `json:"createdAt"`
}

// PublicCatch is a wall entry: a public catch and its owner's username.
type PublicCatch struct {
	CatchRecord
	Username string `json:"username"`
}
