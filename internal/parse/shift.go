package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"campuscrawl/internal/academic"
)

// ScheduleSlot is one decoded weekly meeting, with minutes from midnight and
// the raw building and room labels still unresolved.
type ScheduleSlot struct {
	Weekday  int
	Start    int
	End      int
	Building string
	Room     string
}

// ShiftInfo is the decoded detail table of one shift page.
type ShiftInfo struct {
	Slots         []ScheduleSlot
	Routes        []string
	Teachers      []string
	Restrictions  *string
	WeeklyMinutes *int
	State         *string
	Enrolled      *int
	Capacity      *int
}

// ShiftStudent is one row of the shift's student table.
type ShiftStudent struct {
	Name         string
	SourceID     int
	Abbreviation string
	CourseAbbr   string
}

// The scheduling line reads like
// "Segunda-Feira  10:00 - 12:00  Ed II: Lab 127/Ed.II".
var schedulingExp = regexp.MustCompile(
	`(?P<weekday>[\p{L}-]+) {2}` +
		`(?P<start_h>\d{2}):(?P<start_m>\d{2}) - (?P<end_h>\d{2}):(?P<end_m>\d{2})(?: {2})?` +
		`(?:Ed .*: (?P<room>[\p{L}\d. ]+)/(?P<building>[\p{L}\d. ]+))?`)

var weekdays = map[string]int{
	"segunda": 0,
	"terca":   1,
	"quarta":  2,
	"quinta":  3,
	"sexta":   4,
	"sabado":  5,
	"domingo": 6,
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func fold(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Weekday maps a Portuguese weekday label, with or without the "-feira"
// suffix, to its index, Monday being zero.
func Weekday(label string) (int, error) {
	simplified := fold(strings.SplitN(label, "-", 2)[0])
	if id, ok := weekdays[simplified]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", label)
}

// ShiftFieldError marks a detail-table field label the decoder does not
// recognize. The portal's field set is closed; a new label means the decoder
// is out of date and the page must not be half-read.
type ShiftFieldError struct {
	Field string
}

func (e *ShiftFieldError) Error() string {
	return fmt.Sprintf("unknown shift detail field %q", e.Field)
}

// UnknownFieldPolicy decides what the shift decoder does with a detail field
// label outside the known set.
type UnknownFieldPolicy int

const (
	// UnknownFieldFail rejects the whole page.
	UnknownFieldFail UnknownFieldPolicy = iota
	// UnknownFieldIgnore drops the field and keeps the rest of the page.
	UnknownFieldIgnore
)

// ParseShiftInfo decodes the detail table of a shift page, rejecting pages
// with unrecognized fields.
func ParseShiftInfo(doc *goquery.Document) (*ShiftInfo, error) {
	return ParseShiftInfoWith(doc, UnknownFieldFail)
}

// ParseShiftInfoWith decodes the detail table of a shift page. The table is a
// key-value listing where multi-line values continue on label-less rows.
func ParseShiftInfoWith(doc *goquery.Document, policy UnknownFieldPolicy) (*ShiftInfo, error) {
	table := doc.Find(`th[colspan="2"][bgcolor="#aaaaaa"]`).Closest("table")
	if table.Length() == 0 {
		return nil, fmt.Errorf("shift detail table not found")
	}

	fields := map[string][]string{}
	var order []string
	previous := ""
	var rowErr error
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if rowErr != nil || row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		switch {
		case cells.Length() >= 2:
			key := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
			previous = key
			if _, ok := fields[key]; !ok {
				order = append(order, key)
			}
			fields[key] = append(fields[key], norm.NFKC.String(strings.TrimSpace(cells.Eq(1).Text())))
		case cells.Length() == 1:
			if previous == "" {
				rowErr = fmt.Errorf("shift detail continuation before any field")
				return
			}
			fields[previous] = append(fields[previous], norm.NFKC.String(strings.TrimSpace(cells.Eq(0).Text())))
		}
	})
	if rowErr != nil {
		return nil, rowErr
	}

	info := &ShiftInfo{}
	for _, field := range order {
		content := fields[field]
		switch {
		case field == "marcação":
			for _, row := range content {
				slot, err := parseScheduleSlot(row)
				if err != nil {
					return nil, err
				}
				info.Slots = append(info.Slots, slot)
			}
		case field == "turno":
			// the shift's own label; the link that got us here already has it
		case strings.Contains(field, "percursos"):
			info.Routes = content
		case field == "docentes":
			info.Teachers = append(info.Teachers, content...)
		case strings.Contains(field, "carga"):
			hours, err := strconv.ParseFloat(strings.TrimSuffix(content[0], " horas"), 64)
			if err != nil {
				return nil, fmt.Errorf("malformed weekly load %q: %w", content[0], err)
			}
			minutes := int(hours * 60)
			info.WeeklyMinutes = &minutes
		case field == "estado":
			state := content[0]
			info.State = &state
		case field == "capacidade":
			parts := strings.SplitN(content[0], "/", 2)
			if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
				info.Enrolled = &n
			}
			if len(parts) == 2 {
				if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
					info.Capacity = &n
				}
			}
		case field == "restrição":
			restrictions := content[0]
			info.Restrictions = &restrictions
		default:
			if policy == UnknownFieldIgnore {
				continue
			}
			return nil, &ShiftFieldError{Field: field}
		}
	}
	return info, nil
}

func parseScheduleSlot(row string) (ScheduleSlot, error) {
	m := schedulingExp.FindStringSubmatch(row)
	if m == nil {
		return ScheduleSlot{}, fmt.Errorf("malformed schedule line %q", row)
	}
	groups := map[string]string{}
	for i, name := range schedulingExp.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}
	weekday, err := Weekday(groups["weekday"])
	if err != nil {
		return ScheduleSlot{}, err
	}
	startH, _ := strconv.Atoi(groups["start_h"])
	startM, _ := strconv.Atoi(groups["start_m"])
	endH, _ := strconv.Atoi(groups["end_h"])
	endM, _ := strconv.Atoi(groups["end_m"])
	return ScheduleSlot{
		Weekday:  weekday,
		Start:    startH*60 + startM,
		End:      endH*60 + endM,
		Building: strings.TrimSpace(groups["building"]),
		Room:     strings.TrimSpace(groups["room"]),
	}, nil
}

// ParseShiftStudents decodes the student table of a shift page.
func ParseShiftStudents(doc *goquery.Document) ([]ShiftStudent, error) {
	table := doc.Find(`th[colspan="4"][bgcolor="#95AEA8"]`).Closest("table")
	if table.Length() == 0 {
		return nil, fmt.Errorf("shift student table not found")
	}
	var (
		out    []ShiftStudent
		rowErr error
	)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if rowErr != nil || row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		id, err := strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
		if err != nil {
			rowErr = fmt.Errorf("student with non-numeric id %q", strings.TrimSpace(cells.Eq(1).Text()))
			return
		}
		out = append(out, ShiftStudent{
			Name:         strings.TrimSpace(cells.Eq(0).Text()),
			SourceID:     id,
			Abbreviation: strings.TrimSpace(cells.Eq(2).Text()),
			CourseAbbr:   strings.TrimSpace(cells.Eq(3).Text()),
		})
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return out, nil
}

// The long room label reads like "Laboratório de Ensino Ed II: Lab 127".
var longRoomExp = regexp.MustCompile(
	`(?P<kind>Sala|Laboratório de Ensino|Anfiteatro)` +
		`( de (?P<subkind>Aula|Reunião|Mestrado|Computadores|Multimédia|Multiusos))?` +
		`( Ed (?P<building>[\p{L}\d ]+):)? (Lab[.]? |Laboratório )?(?P<name>[\p{L}\d .-]*)`)

// ParseRoom splits a raw room label into its kind and bare name.
func ParseRoom(label string) (academic.RoomKind, string, error) {
	m := longRoomExp.FindStringSubmatch(label)
	if m == nil {
		return 0, "", fmt.Errorf("malformed room label %q", label)
	}
	groups := map[string]string{}
	for i, name := range longRoomExp.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}
	name := strings.TrimSpace(groups["name"])
	kind := academic.RoomGeneric
	switch groups["subkind"] {
	case "Aula":
		kind = academic.RoomClassroom
	case "Computadores":
		kind = academic.RoomComputer
	case "Reunião", "Mestrado", "Multimédia":
		kind = academic.RoomMeeting
	case "Multiusos":
		kind = academic.RoomGeneric
	case "":
		switch {
		case strings.HasPrefix(groups["kind"], "Lab"):
			kind = academic.RoomLaboratory
		case strings.HasPrefix(groups["kind"], "Anf"):
			kind = academic.RoomAuditorium
		}
	}
	return kind, name, nil
}
