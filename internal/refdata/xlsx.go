package refdata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

func parseStyleWorkbook(path, column string) ([]string, error) {
	rows, err := readFirstSheet(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	colIdx := findColumn(rows[0], []string{column})
	if colIdx < 0 {
		return nil, fmt.Errorf("column %q not found in %s", column, path)
	}

	out := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if colIdx >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[colIdx])
		if v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// parseSupplierWorkbook reads canonical supplier names from the first
// column and, when an agent column is present, the supplier→agent map.
func parseSupplierWorkbook(path, agentColumn string) ([]string, map[string]string, error) {
	rows, err := readFirstSheet(path)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	agentIdx := -1
	start := 0
	if looksLikeHeader(rows[0]) {
		agentIdx = findColumn(rows[0], []string{agentColumn})
		start = 1
	}

	names := make([]string, 0, len(rows))
	agents := map[string]string{}
	for _, row := range rows[start:] {
		if len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		names = append(names, name)
		if agentIdx >= 0 && agentIdx < len(row) {
			if agent := strings.TrimSpace(row[agentIdx]); agent != "" {
				agents[name] = agent
			}
		}
	}
	return names, agents, nil
}

func parseDeductionWorkbook(path string) (map[string]float64, error) {
	rows, err := readFirstSheet(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string]float64{}, nil
	}

	nameIdx := findColumn(rows[0], []string{"名称", "供应商", "面料", "name"})
	amountIdx := findColumn(rows[0], []string{"扣款", "金额", "amount"})
	if nameIdx < 0 || amountIdx < 0 {
		return nil, fmt.Errorf("name/amount columns not found in %s", path)
	}

	out := map[string]float64{}
	for _, row := range rows[1:] {
		if nameIdx >= len(row) || amountIdx >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameIdx])
		raw := strings.TrimSpace(row[amountIdx])
		if name == "" || raw == "" {
			continue
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		out[name] = amount
	}
	return out, nil
}

func readFirstSheet(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

func findColumn(header []string, probes []string) int {
	for i, h := range header {
		h = strings.TrimSpace(h)
		for _, probe := range probes {
			if probe != "" && strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

// looksLikeHeader guards against supplier sheets shipped without a
// header row: a first row whose first cell reads like a label.
func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.TrimSpace(row[0])
	for _, probe := range []string{"供应商", "名称", "name", "supplier"} {
		if strings.Contains(strings.ToLower(first), probe) {
			return true
		}
	}
	return false
}
