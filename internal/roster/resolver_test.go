package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ',', DetectDelimiter("a,b,c\n1,2,3"))
	assert.Equal(t, '\t', DetectDelimiter("a\tb\tc"))
	assert.Equal(t, ';', DetectDelimiter("a;b;c\n1;2;3"))

	// Ties resolve tab > semicolon > comma.
	assert.Equal(t, '\t', DetectDelimiter("a\tb;c,d"))
	assert.Equal(t, ';', DetectDelimiter("a;b,c"))

	// Only the first five lines are sampled.
	sample := "a;b\nc;d\ne;f\ng;h\ni;j\nk,l,m,n,o,p,q,r,s,t\n"
	assert.Equal(t, ';', DetectDelimiter(sample))
}

func TestMapColumnsHeaderSynonyms(t *testing.T) {
	mapping := MapColumns([]string{"CEF", "Nom", "Prénom", "Groupe"})

	assert.Equal(t, 0, mapping.ID)
	assert.Equal(t, 1, mapping.LastName)
	assert.Equal(t, 2, mapping.FirstName)
	assert.Equal(t, 3, mapping.Group)
	assert.Equal(t, Unresolved, mapping.Phone)
}

func TestMapColumnsEnglishHeadersWithPhone(t *testing.T) {
	mapping := MapColumns([]string{"Matricule", "Firstname", "Lastname", "Class", "Address", "Tel"})

	assert.Equal(t, 0, mapping.ID)
	assert.Equal(t, 1, mapping.FirstName)
	assert.Equal(t, 2, mapping.LastName)
	assert.Equal(t, 3, mapping.Group)
	assert.Equal(t, 5, mapping.Phone)
}

func TestMapColumnsPrenomNotSwallowedByNom(t *testing.T) {
	mapping := MapColumns([]string{"Prénom", "Nom"})

	assert.Equal(t, 0, mapping.FirstName)
	assert.Equal(t, 1, mapping.LastName)
}

func TestMapColumnsLegacyPositionalFallback(t *testing.T) {
	mapping := MapColumns([]string{"x", "y", "z", "w", "v"})

	assert.Equal(t, 0, mapping.ID)
	assert.Equal(t, 2, mapping.LastName)
	assert.Equal(t, 3, mapping.FirstName)
	assert.Equal(t, 4, mapping.Group)
}

func TestMapColumnsShortPositionalFallback(t *testing.T) {
	mapping := MapColumns([]string{"x", "y", "z"})

	assert.Equal(t, 0, mapping.ID)
	assert.Equal(t, 1, mapping.FirstName)
	assert.Equal(t, 2, mapping.LastName)
	assert.Equal(t, Unresolved, mapping.Phone)

	six := MapColumns([]string{"x", "y", "z", "w", "v", "u"})
	assert.Equal(t, Unresolved, six.Phone, "six unknown headers resolve via the legacy layout, not stage 3")
}

func TestGuessColumnType(t *testing.T) {
	row := []string{"notes", "EL AMRANI", "Yassine", "CEF20451"}

	assert.Equal(t, 3, GuessColumnType(row, KindID))
	assert.Equal(t, 1, GuessColumnType([]string{"x", "ELAMRANI"}, KindLastName))
	assert.Equal(t, 2, GuessColumnType(row, KindFirstName))
	assert.Equal(t, Unresolved, GuessColumnType([]string{"a", "b"}, KindID))
}

func TestResolveUnresolvableScheme(t *testing.T) {
	header := []string{"??", "!!"}
	_, err := Resolve(header, []string{"--", "++"})
	require.Error(t, err)

	var unresolvable *UnresolvableSchemeError
	require.ErrorAs(t, err, &unresolvable)
	assert.Equal(t, header, unresolvable.Headers)
}

func TestResolveContentGuessFallback(t *testing.T) {
	// Two columns only: headers resolve nothing and both positional
	// stages are inapplicable, so content patterns decide.
	mapping, err := Resolve([]string{"??", "!!"}, []string{"DUPONT", "CEF1042"})
	require.NoError(t, err)

	assert.Equal(t, 1, mapping.ID)
	assert.Equal(t, 0, mapping.LastName)
}

func TestBuildTrainees(t *testing.T) {
	rows := [][]string{
		{"CEF", "Nom", "Prénom", "Groupe", "Tel"},
		{"CEF1001", "EL AMRANI", "Yassine", "DEV101", "0611111111"},
		{"", "", "", "", ""},
		{"", "BENALI", "Sara", "DEV101", "undefined"},
		{"CEF1003", "TAZI", "Omar", "DEV102", ""},
	}
	mapping := MapColumns(rows[0])

	trainees := BuildTrainees(rows, mapping, 1)
	require.Len(t, trainees, 3, "the all-empty row is skipped")

	assert.Equal(t, "CEF1001", trainees[0].ID)
	assert.Equal(t, "EL AMRANI", trainees[0].LastName)
	assert.Equal(t, "Yassine", trainees[0].FirstName)
	assert.Equal(t, "DEV101", trainees[0].GroupName)
	assert.Equal(t, "0611111111", trainees[0].Phone)

	assert.Equal(t, "GEN3", trainees[1].ID, "blank id synthesized from the row ordinal")
	assert.Equal(t, "", trainees[1].Phone, `literal "undefined" is dropped`)

	assert.Equal(t, "CEF1003", trainees[2].ID, "input order preserved")
	assert.Equal(t, 2, trainees[0].SourceRow)
	assert.Equal(t, 4, trainees[1].SourceRow)
	assert.Equal(t, 5, trainees[2].SourceRow, "numbering survives skipped rows")
}

func TestBuildTraineesRoundTrip(t *testing.T) {
	raw := "CEF;Nom;Prénom;Groupe\nCEF1001;EL AMRANI;Yassine;DEV101\nCEF1002;BENALI;Sara;DEV101\n"
	rows := SplitRows(raw)
	mapping, err := Resolve(rows[0], rows[1])
	require.NoError(t, err)

	trainees := BuildTrainees(rows, mapping, 1)
	require.Len(t, trainees, 2)

	// Feeding the normalized output back through the same mapping loses
	// nothing for resolved fields.
	rebuilt := [][]string{rows[0]}
	for _, tr := range trainees {
		rebuilt = append(rebuilt, []string{tr.ID, tr.LastName, tr.FirstName, tr.GroupName})
	}
	again := BuildTrainees(rebuilt, mapping, 1)
	assert.Equal(t, trainees, again)
}
