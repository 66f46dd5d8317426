// Package parse decodes portal pages into candidate-building raw values.
// Extraction leans on link query strings wherever possible since those are
// far more stable than the table markup around them.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link expressions matching the portal's Latin-1 escaped query parameters.
var (
	institutionExp = regexp.MustCompile(`institui%E7%E3o=(\d+)$`)
	departmentExp  = regexp.MustCompile(`\bsector=(\d+)`)
	courseExp      = regexp.MustCompile(`\bcurso=(\d+)`)
	classExp       = regexp.MustCompile(`\bunidade_curricular=(\d+)`)
	yearExp        = regexp.MustCompile(`\bano_lectivo=(\d+)`)
	teacherExp     = regexp.MustCompile(`\bdocente=(\d+)`)
	buildingExp    = regexp.MustCompile(`\bedif%EDcio=(\d+)`)
	placeExp       = regexp.MustCompile(`\bespa%E7o=(\d+)`)
	shiftLinkExp   = regexp.MustCompile(`&tipo=(\w+)&n%BA=(\d+)`)
)

// noDataMarker is what the portal serves instead of restricted or absent
// content.
const noDataMarker = "Pedido inválido"

// NoData reports whether the page is the portal's "invalid request" answer.
func NoData(doc *goquery.Document) bool {
	return strings.Contains(doc.Text(), noDataMarker)
}

// Link is an entity reference scraped from an anchor: the source identifier
// from the query string plus the anchor text.
type Link struct {
	ID   int
	Text string
}

// links collects every anchor whose href matches exp, pairing the first
// capture group with the trimmed anchor text.
func links(doc *goquery.Document, exp *regexp.Regexp) []Link {
	var out []Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := exp.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		out = append(out, Link{ID: id, Text: strings.TrimSpace(sel.Text())})
	})
	return out
}

// Institutions extracts institution links from the registry index, with the
// anchor text being the institution's abbreviation. The expression is
// anchored so links merely scoped to an institution do not match.
func Institutions(doc *goquery.Document) []Link {
	return links(doc, institutionExp)
}

// Departments extracts department links from the department index.
func Departments(doc *goquery.Document) []Link {
	return links(doc, departmentExp)
}

// Courses extracts course links, with the anchor text being the course name.
func Courses(doc *goquery.Document) []Link {
	return links(doc, courseExp)
}

// CourseAbbreviations extracts course links from the statistics page, where
// the anchor text is the course acronym. Anchors with empty text are skipped.
func CourseAbbreviations(doc *goquery.Document) []Link {
	var out []Link
	for _, l := range links(doc, courseExp) {
		if l.Text == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Classes extracts class links from a department period listing.
func Classes(doc *goquery.Document) []Link {
	return links(doc, classExp)
}

// Teachers extracts teacher links from a department teacher listing.
func Teachers(doc *goquery.Document) []Link {
	return links(doc, teacherExp)
}

// Buildings extracts building links from the building index.
func Buildings(doc *goquery.Document) []Link {
	return links(doc, buildingExp)
}

// Places extracts room links from a building schedule page.
func Places(doc *goquery.Document) []Link {
	return links(doc, placeExp)
}

// Years extracts every academic year linked from the page and returns the
// distinct set in first-seen order.
func Years(doc *goquery.Document) []int {
	seen := map[int]bool{}
	var out []int
	for _, l := range links(doc, yearExp) {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l.ID)
	}
	return out
}

// YearSpan extracts the lowest and highest linked academic year. Both are
// zero when the page links no years.
func YearSpan(doc *goquery.Document) (first, last int) {
	for _, year := range Years(doc) {
		if first == 0 || year < first {
			first = year
		}
		if year > last {
			last = year
		}
	}
	return first, last
}

// ShiftKey identifies one shift within an offering.
type ShiftKey struct {
	Type   string
	Number int
}

// ShiftKeys extracts the shift links from an offering's shift index.
func ShiftKeys(doc *goquery.Document) ([]ShiftKey, error) {
	var (
		out     []ShiftKey
		seen    = map[ShiftKey]bool{}
		badHref string
	)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := shiftLinkExp.FindStringSubmatch(href)
		if m == nil {
			return
		}
		number, err := strconv.Atoi(m[2])
		if err != nil {
			badHref = href
			return
		}
		key := ShiftKey{Type: m[1], Number: number}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, key)
	})
	if badHref != "" {
		return nil, fmt.Errorf("malformed shift link %q", badHref)
	}
	return out, nil
}
