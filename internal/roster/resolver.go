// Package roster resolves arbitrary delimited roster files into trainee
// records. Column semantics are detected by an ordered rule pipeline:
// header synonym matching, then positional legacy layouts, then
// content-pattern guessing over a sample data row.
package roster

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Field indexes inside a ColumnMap; -1 means unresolved.
const Unresolved = -1

// ColumnMap holds the resolved column index per trainee field.
type ColumnMap struct {
	ID        int
	LastName  int
	FirstName int
	Group     int
	Phone     int
}

func emptyColumnMap() ColumnMap {
	return ColumnMap{ID: Unresolved, LastName: Unresolved, FirstName: Unresolved, Group: Unresolved, Phone: Unresolved}
}

// identityResolved reports whether any of the identity fields was found.
func (m ColumnMap) identityResolved() bool {
	return m.ID != Unresolved || m.LastName != Unresolved || m.FirstName != Unresolved
}

// Trainee is one normalized roster line. GroupName is the raw group
// label from the file; resolving it to a stored group is the caller's
// concern, as is upsert handling for duplicate ids. SourceRow is the
// 1-based row number in the file, kept so per-row errors point at the
// right line even when intermediate rows were skipped.
type Trainee struct {
	ID        string
	LastName  string
	FirstName string
	GroupName string
	Phone     string
	SourceRow int
}

// UnresolvableSchemeError signals that no strategy could locate the
// id/lastName/firstName columns. It carries the raw header row so the
// user can correct the file.
type UnresolvableSchemeError struct {
	Headers []string
}

func (e *UnresolvableSchemeError) Error() string {
	return fmt.Sprintf("unresolvable roster scheme, headers: [%s]", strings.Join(e.Headers, ", "))
}

var headerSynonyms = map[string][]string{
	"id":        {"cef", "matricule", "code", "identifiant", "id"},
	"lastName":  {"nom", "lastname", "last_name", "surname", "famille"},
	"firstName": {"prénom", "prenom", "firstname", "first_name", "givenname"},
	"group":     {"groupe", "group", "classe", "class", "section", "filière", "filiere"},
	"phone":     {"téléphone", "telephone", "tel", "gsm", "phone", "portable"},
}

// DetectDelimiter inspects up to the first five lines and returns the
// delimiter with the highest occurrence count. Ties resolve in the
// priority order tab, semicolon, comma.
func DetectDelimiter(sample string) rune {
	lines := strings.Split(sample, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	head := strings.Join(lines, "\n")

	best := ','
	bestCount := -1
	for _, candidate := range []rune{'\t', ';', ','} {
		count := strings.Count(head, string(candidate))
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

// SplitRows turns a raw text blob into trimmed rows using the detected
// delimiter. Blank lines are dropped.
func SplitRows(raw string) [][]string {
	delim := DetectDelimiter(raw)
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, string(delim))
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	return rows
}

// MapColumns resolves field indexes from a header row. Stage 1 matches
// header cells against curated synonym lists. When none of the identity
// columns resolve, stage 2 assumes the legacy five-column export layout
// (id, -, lastName, firstName, group) and stage 3 falls back to a plain
// positional default for at least three columns.
func MapColumns(header []string) ColumnMap {
	mapping := emptyColumnMap()

	for i, cell := range header {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		if normalized == "" {
			continue
		}
		if mapping.ID == Unresolved && matchesAny(normalized, headerSynonyms["id"]) {
			mapping.ID = i
			continue
		}
		if mapping.LastName == Unresolved && matchesAny(normalized, headerSynonyms["lastName"]) {
			mapping.LastName = i
			continue
		}
		if mapping.FirstName == Unresolved && matchesAny(normalized, headerSynonyms["firstName"]) {
			mapping.FirstName = i
			continue
		}
		if mapping.Group == Unresolved && matchesAny(normalized, headerSynonyms["group"]) {
			mapping.Group = i
			continue
		}
		if mapping.Phone == Unresolved && matchesAny(normalized, headerSynonyms["phone"]) {
			mapping.Phone = i
		}
	}

	if mapping.identityResolved() {
		return mapping
	}

	// Stage 2: legacy export layout.
	if len(header) >= 5 {
		mapping.ID = 0
		mapping.LastName = 2
		mapping.FirstName = 3
		mapping.Group = 4
		return mapping
	}

	// Stage 3: positional default.
	if len(header) >= 3 {
		mapping.ID = 0
		mapping.FirstName = 1
		mapping.LastName = 2
		if len(header) >= 6 {
			mapping.Phone = 5
		}
	}

	return mapping
}

// "prénom" must not be swallowed by a broad "nom" match: a synonym only
// hits when the header contains it as a substring and the header does
// not more specifically match a longer synonym of another field. The
// curated lists are ordered so the id/lastName/firstName scan above
// checks fields in a fixed order; the one special case handled here is
// "nom" inside "prénom".
func matchesAny(header string, synonyms []string) bool {
	for _, syn := range synonyms {
		if !strings.Contains(header, syn) {
			continue
		}
		if syn == "nom" && (strings.Contains(header, "prénom") || strings.Contains(header, "prenom")) {
			continue
		}
		return true
	}
	return false
}

// FieldKind selects the content pattern used by GuessColumnType.
type FieldKind string

const (
	KindID        FieldKind = "id"
	KindLastName  FieldKind = "lastName"
	KindFirstName FieldKind = "firstName"
)

var trailingDigits = regexp.MustCompile(`[0-9]{3,}$`)

// GuessColumnType scans a sample data row for a value matching the
// content pattern of the requested field and returns the first hit.
// It is the last-resort strategy when headers resolved nothing and the
// positional fallbacks were inapplicable.
func GuessColumnType(row []string, kind FieldKind) int {
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if len([]rune(cell)) < 3 {
			continue
		}
		switch kind {
		case KindID:
			if isAlphanumeric(cell) && trailingDigits.MatchString(cell) {
				return i
			}
		case KindLastName:
			if isAlphabetic(cell) && strings.ToUpper(cell) == cell {
				return i
			}
		case KindFirstName:
			if isAlphabetic(cell) && strings.ToUpper(cell) != cell && strings.ToLower(cell) != cell {
				return i
			}
		}
	}
	return Unresolved
}

// Resolve runs the full detection pipeline over a header row, using
// sampleRow for content guessing when every other strategy failed.
func Resolve(header []string, sampleRow []string) (ColumnMap, error) {
	mapping := MapColumns(header)
	if mapping.identityResolved() {
		return mapping, nil
	}

	mapping.ID = GuessColumnType(sampleRow, KindID)
	mapping.LastName = GuessColumnType(sampleRow, KindLastName)
	mapping.FirstName = GuessColumnType(sampleRow, KindFirstName)
	if mapping.identityResolved() {
		return mapping, nil
	}

	return mapping, &UnresolvableSchemeError{Headers: header}
}

// BuildTrainees materializes normalized trainee lines from data rows,
// starting at startRow. Rows whose resolved cells are all empty are
// skipped; a missing or blank id is synthesized as GEN<ordinal>.
// Output order follows input order.
func BuildTrainees(rows [][]string, mapping ColumnMap, startRow int) []Trainee {
	if startRow < 0 {
		startRow = 0
	}
	trainees := make([]Trainee, 0, len(rows))
	for ordinal := startRow; ordinal < len(rows); ordinal++ {
		row := rows[ordinal]
		id := cleanCell(cellAt(row, mapping.ID))
		lastName := cleanCell(cellAt(row, mapping.LastName))
		firstName := cleanCell(cellAt(row, mapping.FirstName))
		groupName := cleanCell(cellAt(row, mapping.Group))
		phone := cleanCell(cellAt(row, mapping.Phone))

		if id == "" && lastName == "" && firstName == "" && groupName == "" {
			continue
		}
		if id == "" {
			id = fmt.Sprintf("GEN%d", ordinal)
		}

		trainees = append(trainees, Trainee{
			ID:        id,
			LastName:  lastName,
			FirstName: firstName,
			GroupName: groupName,
			Phone:     phone,
			SourceRow: ordinal + 1,
		})
	}
	return trainees
}

func cellAt(row []string, index int) string {
	if index == Unresolved || index >= len(row) {
		return ""
	}
	return row[index]
}

func cleanCell(cell string) string {
	cell = strings.TrimSpace(cell)
	if cell == "undefined" {
		return ""
	}
	return cell
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
