// Package dataset loads feature and label CSV files and cuts them into the
// folds a trainer consumes.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/IanQS/pTensor/tensor"
)

type errInvalidLine struct {
	lineNum  int
	splits   int
	expected int
}

func (e errInvalidLine) Error() string {
	return fmt.Sprintf("at line %d, expected %d values, got %d",
		e.lineNum, e.expected, e.splits)
}

// ReadFeatures reads a comma separated feature matrix, one observation per
// line. The first line is a header and is skipped. With addBias a column of
// ones is prepended.
func ReadFeatures(r io.Reader, addBias bool) (*tensor.Tensor, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	if addBias {
		for i, row := range rows {
			rows[i] = append([]float64{1}, row...)
		}
	}
	return tensor.FromRows(rows)
}

// ReadLabels reads a single-column label file with a header line and returns
// the labels as a 1×n row.
func ReadLabels(r io.Reader) (*tensor.Tensor, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	labels := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, errInvalidLine{lineNum: i + 2, splits: len(row), expected: 1}
		}
		labels[i] = row[0]
	}
	return tensor.NewWithData(labels), nil
}

func readRows(r io.Reader) ([][]float64, error) {
	scanner := bufio.NewScanner(r)
	var (
		rows    [][]float64
		lineNum int
		width   int
	)
	for scanner.Scan() {
		lineNum++
		if lineNum == 1 {
			continue
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		splits := strings.Split(text, ",")
		if width == 0 {
			width = len(splits)
		}
		if len(splits) != width {
			return nil, errInvalidLine{
				lineNum:  lineNum,
				splits:   len(splits),
				expected: width,
			}
		}
		row := make([]float64, len(splits))
		for i, split := range splits {
			num, err := strconv.ParseFloat(strings.TrimSpace(split), 64)
			if err != nil {
				return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
			}
			row[i] = num
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("reading csv: no data lines")
	}
	return rows, nil
}
