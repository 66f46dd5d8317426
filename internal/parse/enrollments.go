package parse

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// EnrollmentRow is one student line of the roster export.
type EnrollmentRow struct {
	SourceID     int
	Name         string
	Abbreviation string
	Statutes     string
	CourseAbbr   string
	Attempt      int
	StudentYear  int
}

// rosterHeaderLines is the preamble the export carries before the rows.
const rosterHeaderLines = 4

// ParseEnrollments decodes the tab-separated roster export. The export is
// Latin-1 and carries ordinal suffixes on the numeric columns. Lines with an
// unexpected column count are skipped; a nameless student aborts the decode
// since that means the column layout changed.
func ParseEnrollments(data []byte) ([]EnrollmentRow, error) {
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("decode roster export: %w", err)
	}

	var out []EnrollmentRow
	scanner := bufio.NewScanner(bytes.NewReader(decoded))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line <= rosterHeaderLines {
			continue
		}
		columns := strings.Split(scanner.Text(), "\t")
		if len(columns) != 7 {
			continue
		}
		name := strings.TrimSpace(columns[1])
		if name == "" {
			return nil, fmt.Errorf("roster line %d has no student name", line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(columns[2]))
		if err != nil {
			return nil, fmt.Errorf("roster line %d has a non-numeric student id: %w", line, err)
		}
		attempt, err := ordinal(columns[5])
		if err != nil {
			return nil, fmt.Errorf("roster line %d: %w", line, err)
		}
		studentYear, err := ordinal(columns[6])
		if err != nil {
			return nil, fmt.Errorf("roster line %d: %w", line, err)
		}
		out = append(out, EnrollmentRow{
			SourceID:     id,
			Name:         name,
			Abbreviation: strings.TrimSpace(columns[3]),
			Statutes:     strings.TrimSpace(columns[0]),
			CourseAbbr:   strings.TrimSpace(columns[4]),
			Attempt:      attempt,
			StudentYear:  studentYear,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read roster export: %w", err)
	}
	return out, nil
}

// ordinal parses numbers like "2º" or "3ª".
func ordinal(s string) (int, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(s), "ºª")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("malformed ordinal %q: %w", s, err)
	}
	return n, nil
}
