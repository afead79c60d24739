package student

import "time"

func date(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DevRoster is the fixed roster served when no database is configured.
func DevRoster() []Student {
	created := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	return []Student{
		{
			ID: "0b6f5d2e-8d1a-4c57-9d43-5f3a2b1c9e01", Name: "Amara Okafor", Email: "amara.okafor@students.lms.test",
			DateOfBirth: date(2010, time.March, 14), Grade: 9, ParentName: "Chidi Okafor", ParentPhone: "+1-555-0101",
			Address: "12 Elm Street", EmergencyContact: "+1-555-0199", CreatedAt: created,
		},
		{
			ID: "1c7a6e3f-9e2b-4d68-8e54-6a4b3c2d0f12", Name: "Ben Carter", Email: "ben.carter@students.lms.test",
			DateOfBirth: date(2011, time.July, 2), Grade: 8, ParentName: "Laura Carter", ParentPhone: "+1-555-0102",
			CreatedAt: created,
		},
		{
			ID: "2d8b7f40-af3c-4e79-9f65-7b5c4d3e1a23", Name: "Chen Wei", Email: "chen.wei@students.lms.test",
			DateOfBirth: date(2009, time.November, 23), Grade: 10, ParentName: "Li Wei", ParentPhone: "+1-555-0103",
			Address: "48 Oak Avenue, Apt 3", CreatedAt: created,
		},
	}
}
