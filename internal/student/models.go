package student

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("student not found")

// DateLayout is used for date_of_birth in JSON and CSV.
const DateLayout = "2006-01-02"

type Student struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	DateOfBirth      Date      `json:"dateOfBirth"`
	Grade            int       `json:"grade"`
	ParentName       string    `json:"parentName"`
	ParentPhone      string    `json:"parentPhone"`
	Address          string    `json:"address,omitempty"`
	EmergencyContact string    `json:"emergencyContact,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Date is a calendar date without a time component.
type Date struct{ time.Time }

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}
