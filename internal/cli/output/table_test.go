package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("Block", "State", "Erases")

	assert.Equal(t, []string{"Block", "State", "Erases"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("0", "good", "12")
	table.AddRow("1", "bad", "40000")

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0", "good", "12"}, rows[0])
	assert.Equal(t, []string{"1", "bad", "40000"}, rows[1])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Block", "State")
	table.AddRow("0", "good")
	table.AddRow("1", "worn")

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "BLOCK")
	assert.Contains(t, out, "STATE")
	assert.Contains(t, out, "good")
	assert.Contains(t, out, "worn")
}

func TestKeyValueTable(t *testing.T) {
	pairs := [][2]string{
		{"Total blocks", "1024"},
		{"Bad blocks", "3"},
	}

	var buf bytes.Buffer
	err := KeyValueTable(&buf, pairs)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Total blocks")
	assert.Contains(t, out, "1024")
	assert.Contains(t, out, "Bad blocks")
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{
		"":      FormatTable,
		"table": FormatTable,
		"json":  FormatJSON,
		"yaml":  FormatYAML,
		"yml":   FormatYAML,
		" JSON": FormatJSON,
	} {
		got, err := ParseFormat(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestPrintFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	err := Print(&buf, FormatTable, map[string]int{"good": 3})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"good": 3`)
}
