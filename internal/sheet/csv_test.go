package sheet

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	in := "\xEF\xBB\xBFOrder ID,Product Name,Quantity\n1001,\"Widget, large\",2\n1002,Gadget\n"
	tbl, err := LoadCSV("Platform A Orders", strings.NewReader(in))
	require.NoError(t, err)

	ctx := context.Background()
	h, err := tbl.Header(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Order ID", "Product Name", "Quantity"}, h)
	assert.Equal(t, "Platform A Orders", tbl.Name())

	assert.Equal(t, []Row{{"1001", "Widget, large", "2"}, {"1002", "Gadget"}}, tbl.Rows())
}

func TestLoadCSV_Empty(t *testing.T) {
	_, err := LoadCSV("empty", strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestWriteCSV(t *testing.T) {
	ctx := context.Background()
	when := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	tbl := NewMemoryTable("t", []string{"id", "date", "amount", "flag"},
		Row{"1", when, 12.5, true},
		nil,
		Row{"3"},
	)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(ctx, &buf, tbl))

	want := "id,date,amount,flag\n" +
		"1,2024-03-09T14:30:00Z,12.5,true\n" +
		",,,\n" +
		"3,,,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_MissingTable(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(context.Background(), &buf, NewMemoryTable("gone", nil))
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", FormatCell(nil))
	assert.Equal(t, "3", FormatCell(3.0))
	assert.Equal(t, "0.1", FormatCell(0.1))
	assert.Equal(t, "7", FormatCell(7))
	var nilTime *time.Time
	assert.Equal(t, "", FormatCell(nilTime))
}
