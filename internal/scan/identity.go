package scan

import (
	"fmt"
	"strings"

	"github.com/zombor/id-scanner/internal/engine"
)

// Identity is the simplified personal data shown to the user
type Identity struct {
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	FullName    string      `json:"full_name"`
	DateOfBirth engine.Date `json:"date_of_birth"`
}

// ExtractIdentity derives an Identity from a recognizer result. Every field
// takes the first non-empty value of Latin, Cyrillic, Arabic, then the MRZ.
// Date components fall back independently.
func ExtractIdentity(r *engine.IDResult) Identity {
	first := Coalesce(r.FirstName.Latin, r.FirstName.Cyrillic, r.FirstName.Arabic, r.MRZ.SecondaryID)
	last := Coalesce(r.LastName.Latin, r.LastName.Cyrillic, r.LastName.Arabic, r.MRZ.PrimaryID)

	full := Coalesce(
		r.FullName.Latin,
		r.FullName.Cyrillic,
		r.FullName.Arabic,
		joinNames(first, last),
		joinNames(r.MRZ.SecondaryID, r.MRZ.PrimaryID),
	)

	return Identity{
		FirstName: first,
		LastName:  last,
		FullName:  full,
		DateOfBirth: engine.Date{
			Year:  Coalesce(r.DateOfBirth.Year, r.MRZ.DateOfBirth.Year),
			Month: Coalesce(r.DateOfBirth.Month, r.MRZ.DateOfBirth.Month),
			Day:   Coalesce(r.DateOfBirth.Day, r.MRZ.DateOfBirth.Day),
		},
	}
}

func joinNames(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// DisplayName prefers "first last" and falls back to the full name
func (i Identity) DisplayName() string {
	return Coalesce(joinNames(i.FirstName, i.LastName), i.FullName)
}

// Greeting is the message shown after a successful scan
func Greeting(i Identity) string {
	d := i.DateOfBirth
	return fmt.Sprintf("Hello, %s!\n You were born on %d-%d-%d.", i.DisplayName(), d.Year, d.Month, d.Day)
}
