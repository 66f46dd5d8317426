package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AdmissionRow is one admitted-student line of a contest placement table.
// The student id and state only show up once the student enrolls.
type AdmissionRow struct {
	Name     string
	Option   *int
	SourceID *int
	State    *string
}

// ParseAdmissions decodes the placement table of one course and phase.
func ParseAdmissions(doc *goquery.Document) ([]AdmissionRow, error) {
	table := doc.Find(`th[colspan="8"][bgcolor="#95AEA8"]`).Closest("table")
	if table.Length() == 0 {
		return nil, fmt.Errorf("admission table not found")
	}
	var (
		out    []AdmissionRow
		rowErr error
	)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if rowErr != nil || row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		if name == "" {
			return
		}
		entry := AdmissionRow{Name: name}
		if v := strings.TrimSpace(cells.Eq(4).Text()); v != "" {
			option, err := strconv.Atoi(v)
			if err != nil {
				rowErr = fmt.Errorf("malformed admission option %q for %s", v, name)
				return
			}
			entry.Option = &option
		}
		if v := strings.TrimSpace(cells.Eq(5).Text()); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				rowErr = fmt.Errorf("malformed admission student id %q for %s", v, name)
				return
			}
			entry.SourceID = &id
		}
		if v := strings.TrimSpace(cells.Eq(6).Text()); v != "" {
			entry.State = &v
		}
		out = append(out, entry)
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return out, nil
}
