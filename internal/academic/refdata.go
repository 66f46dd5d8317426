package academic

// Reference rows seeded into every fresh store. The portal never adds to
// these sets; the decoder treats unknown abbreviations as errors.

// DefaultDegrees returns the closed set of conferred degrees.
func DefaultDegrees() []Degree {
	return []Degree{
		{ID: 1, Code: "L", Name: "Licenciatura"},
		{ID: 2, Code: "M", Name: "Mestrado"},
		{ID: 3, Code: "D", Name: "Doutoramento"},
		{ID: 4, Code: "M", Name: "Mestrado Integrado"},
		{ID: 5, Code: "Pg", Name: "Pos-Graduação"},
		{ID: 6, Code: "EA", Name: "Estudos Avançados"},
		{ID: 7, Code: "pG", Name: "Pré-Graduação"},
	}
}

// DefaultPeriods returns every period scheme the portal uses: annual,
// semesters and trimesters.
func DefaultPeriods() []Period {
	return []Period{
		{ID: 1, Part: 1, Parts: 1, Letter: "a"},
		{ID: 2, Part: 1, Parts: 2, Letter: "s"},
		{ID: 3, Part: 2, Parts: 2, Letter: "s"},
		{ID: 4, Part: 1, Parts: 4, Letter: "t"},
		{ID: 5, Part: 2, Parts: 4, Letter: "t"},
		{ID: 6, Part: 3, Parts: 4, Letter: "t"},
		{ID: 7, Part: 4, Parts: 4, Letter: "t"},
	}
}

// DefaultShiftTypes returns the known shift types.
func DefaultShiftTypes() []ShiftType {
	return []ShiftType{
		{ID: 1, Name: "Theoretical", Abbreviation: "t"},
		{ID: 2, Name: "Practical", Abbreviation: "p"},
		{ID: 3, Name: "Practical-Theoretical", Abbreviation: "tp"},
		{ID: 4, Name: "Seminar", Abbreviation: "s"},
		{ID: 5, Name: "Tutorial Orientation", Abbreviation: "ot"},
		{ID: 6, Name: "Field Work", Abbreviation: "tc"},
		{ID: 7, Name: "Online Theoretical", Abbreviation: "to"},
		{ID: 8, Name: "Online Practical", Abbreviation: "po"},
		{ID: 9, Name: "Online Practical-Theoretical", Abbreviation: "op"},
	}
}
