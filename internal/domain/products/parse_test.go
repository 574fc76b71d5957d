package products

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestParseLine(t *testing.T) {
	p, err := ParseLine("Netflix Premium, 349, Стриминг")
	if err == nil {
		t.Fatalf("expected error for 3-field line, got %+v", p)
	}

	p, err = ParseLine("Netflix Premium, 349.50, 5, Стриминг")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if p.Name != "Netflix Premium" || p.Stock != 5 || p.Category != "Стриминг" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if !p.Price.Equal(decimal.RequireFromString("349.5")) {
		t.Fatalf("price = %s", p.Price)
	}
}

func TestParseLineRejects(t *testing.T) {
	for _, line := range []string{
		",100,1,cat",
		"Name,abc,1,cat",
		"Name,-1,1,cat",
		"Name,100,-2,cat",
		"Name,100,1.5,cat",
		"Name,100,1,cat,extra",
	} {
		if _, err := ParseLine(line); !errors.Is(err, ErrBadFormat) {
			t.Errorf("ParseLine(%q) err = %v, want ErrBadFormat", line, err)
		}
	}
}

func TestXLSXExportImport(t *testing.T) {
	items := []Product{
		{Name: "Spotify", Price: decimal.RequireFromString("199.9"), Stock: 3, Category: "Музыка"},
		{Name: "YouTube", Price: decimal.NewFromInt(250), Stock: 0, Category: "Видео"},
	}
	data, err := WriteXLSX(items)
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	got, bad, err := ParseXLSX(data)
	if err != nil {
		t.Fatalf("ParseXLSX: %v", err)
	}
	if len(bad) != 0 {
		t.Fatalf("unexpected bad rows: %v", bad)
	}
	if len(got) != 2 || got[0].Name != "Spotify" || !got[0].Price.Equal(items[0].Price) || got[1].Stock != 0 {
		t.Fatalf("unexpected import: %+v", got)
	}
}

func TestParseXLSXReportsBadRows(t *testing.T) {
	if _, _, err := ParseXLSX([]byte("not an xlsx")); err == nil {
		t.Fatal("expected error for garbage input")
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows := [][]interface{}{
		{"Ok", "10", "1", "cat"},
		{"Broken", "ten", "1", "cat"},
		{},
		{"Also ok", "5,5", "0", ""},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		t.Fatal(err)
	}

	got, bad, err := ParseXLSX(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseXLSX: %v", err)
	}
	if len(got) != 2 || got[1].Name != "Also ok" || !got[1].Price.Equal(decimal.RequireFromString("5.5")) {
		t.Fatalf("unexpected products: %+v", got)
	}
	if len(bad) != 1 || !strings.HasPrefix(bad[0], "строка 2") {
		t.Fatalf("unexpected bad rows: %v", bad)
	}
}
