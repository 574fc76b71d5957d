package accounts

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseText разбирает пачку "login:password", по одной паре в строке.
// Разделитель первый ':' (пароль может содержать двоеточия). Пустые строки пропускаются,
// повторы внутри пачки отбрасываются, кривые строки возвращаются во втором значении.
func ParseText(text string) ([]Credentials, []string) {
	var (
		out  []Credentials
		bad  []string
		seen = map[string]struct{}{}
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c, ok := parsePair(line)
		if !ok {
			bad = append(bad, line)
			continue
		}
		if _, dup := seen[c.Login]; dup {
			continue
		}
		seen[c.Login] = struct{}{}
		out = append(out, c)
	}
	return out, bad
}

func parsePair(line string) (Credentials, bool) {
	login, password, found := strings.Cut(line, ":")
	login, password = strings.TrimSpace(login), strings.TrimSpace(password)
	if !found || login == "" || password == "" {
		return Credentials{}, false
	}
	return Credentials{Login: login, Password: password}, true
}

// ParseXLSX читает первый лист: login | password, либо одну колонку "login:password".
func ParseXLSX(data []byte) ([]Credentials, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("в файле нет листов")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}

	var lines []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		first := strings.TrimSpace(row[0])
		if i == 0 && strings.EqualFold(first, "login") {
			continue
		}
		if len(row) >= 2 && strings.TrimSpace(row[1]) != "" {
			lines = append(lines, first+":"+strings.TrimSpace(row[1]))
			continue
		}
		lines = append(lines, first)
	}
	out, bad := ParseText(strings.Join(lines, "\n"))
	return out, bad, nil
}
