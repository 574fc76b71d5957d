package products

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// LineFormat подсказка для админа при ошибке ввода.
const LineFormat = "Название,Цена,Количество,Категория"

// ParseLine разбирает строку вида "Название,Цена,Количество,Категория".
func ParseLine(line string) (Product, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 4 {
		return Product{}, fmt.Errorf("%w: ожидается %s", ErrBadFormat, LineFormat)
	}
	return fromFields(parts[0], parts[1], parts[2], parts[3])
}

func fromFields(name, price, stock, category string) (Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: пустое название", ErrBadFormat)
	}
	p, err := ParsePrice(price)
	if err != nil {
		return Product{}, err
	}
	s, err := ParseStock(stock)
	if err != nil {
		return Product{}, err
	}
	return Product{Name: name, Price: p, Stock: s, Category: strings.TrimSpace(category)}, nil
}

// ParsePrice принимает и "199.90", и "199,90".
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: цена %q не число", ErrBadFormat, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: цена не может быть отрицательной", ErrBadFormat)
	}
	return d.Round(2), nil
}

func ParseStock(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: количество %q не целое число", ErrBadFormat, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: количество не может быть отрицательным", ErrBadFormat)
	}
	return n, nil
}

var xlsxHeader = []string{"name", "price", "stock", "category"}

// ParseXLSX читает первый лист: name | price | stock | category.
// Строка заголовка необязательна. Ошибочные строки возвращаются отдельно с номером.
func ParseXLSX(data []byte) ([]Product, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: в файле нет листов", ErrBadFormat)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}

	var (
		out []Product
		bad []string
	)
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), xlsxHeader[0]) {
			continue
		}
		cells := make([]string, 4)
		copy(cells, row)
		if strings.TrimSpace(strings.Join(cells, "")) == "" {
			continue
		}
		p, err := fromFields(cells[0], cells[1], cells[2], cells[3])
		if err != nil {
			bad = append(bad, fmt.Sprintf("строка %d: %v", i+1, err))
			continue
		}
		out = append(out, p)
	}
	return out, bad, nil
}

// WriteXLSX выгружает каталог в формате, который понимает ParseXLSX.
func WriteXLSX(items []Product) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	header := []interface{}{xlsxHeader[0], xlsxHeader[1], xlsxHeader[2], xlsxHeader[3]}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, p := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{p.Name, p.Price.StringFixed(2), p.Stock, p.Category}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
