package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	ErrNoDetails        = errors.New("entry has no details")
	ErrMalformedDetails = errors.New("entry details are malformed")
)

type Field struct {
	Label string
	Value string
}

// Details is the rendered form of an entry's inputs, in the order the
// backend stored them.
type Details struct {
	EntryID string
	Fields  []Field
}

func (d Details) Get(label string) (string, bool) {
	for _, f := range d.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// ViewDetails renders the entry's details object. Keys have underscores
// replaced by spaces and null values read "N/A".
func ViewDetails(e Entry) (Details, error) {
	if !e.HasDetails() {
		return Details{}, ErrNoDetails
	}
	fields, err := parseFields(*e.Details)
	if err != nil {
		return Details{}, fmt.Errorf("%w: %v", ErrMalformedDetails, err)
	}
	return Details{EntryID: e.ID, Fields: fields}, nil
}

// parseFields walks the object token by token so key order survives. A
// repeated key keeps its first position and takes the last value.
func parseFields(raw string) ([]Field, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	fields := make([]Field, 0)
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		rendered, err := renderValue(value)
		if err != nil {
			return nil, err
		}

		f := Field{Label: strings.ReplaceAll(key, "_", " "), Value: rendered}
		if i, seen := index[key]; seen {
			fields[i] = f
			continue
		}
		index[key] = len(fields)
		fields = append(fields, f)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after object")
	}
	return fields, nil
}

func renderValue(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case 'n':
		return "N/A", nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		return string(trimmed), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		f, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return "", err
		}
		return formatNumber(f), nil
	}
}

// formatNumber writes f the way a browser prints a JSON number: shortest
// digits, plain notation between 1e-6 and 1e21, exponent form outside it.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
