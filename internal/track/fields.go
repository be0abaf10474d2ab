package track

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"sustainamind/carbontrack/internal/backend"
)

type Kind int

const (
	Text Kind = iota + 1
	OptionalText
	Number
	Count
	Flag
)

// Field describes one calculation input as forms and flags name it.
type Field struct {
	Name string
	Kind Kind
}

var fieldIndex = buildIndex()

type indexed struct {
	Field
	pos int
}

func buildIndex() []indexed {
	typ := reflect.TypeOf(backend.CarbonInput{})
	out := make([]indexed, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" || name == "user_id" {
			continue
		}
		var kind Kind
		switch {
		case f.Type.Kind() == reflect.Pointer:
			kind = OptionalText
		case f.Type.Kind() == reflect.String:
			kind = Text
		case f.Type.Kind() == reflect.Float64:
			kind = Number
		case strings.Contains(f.Tag.Get("validate"), "oneof=0 1"):
			kind = Flag
		default:
			kind = Count
		}
		out = append(out, indexed{Field: Field{Name: name, Kind: kind}, pos: i})
	}
	return out
}

// Fields lists the inputs in payload order.
func Fields() []Field {
	out := make([]Field, 0, len(fieldIndex))
	for _, f := range fieldIndex {
		out = append(out, f.Field)
	}
	return out
}

// ParseFields builds a CarbonInput from text values keyed by field name.
// Names match case-insensitively. Flags accept 0/1, yes/no and true/false.
// Missing fields stay zero and are caught by validation on Submit.
func ParseFields(values map[string]string) (backend.CarbonInput, error) {
	var in backend.CarbonInput
	rv := reflect.ValueOf(&in).Elem()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, key := range keys {
		f, ok := lookup(key)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown field %q", key))
			continue
		}
		raw := strings.TrimSpace(values[key])
		dst := rv.Field(f.pos)
		if err := assign(dst, f.Kind, raw); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.Name, err))
		}
	}
	if len(problems) > 0 {
		return backend.CarbonInput{}, fmt.Errorf("parse fields: %s", strings.Join(problems, "; "))
	}
	return in, nil
}

func lookup(name string) (indexed, bool) {
	for _, f := range fieldIndex {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return indexed{}, false
}

func assign(dst reflect.Value, kind Kind, raw string) error {
	switch kind {
	case Text:
		dst.SetString(raw)
	case OptionalText:
		if raw == "" || strings.EqualFold(raw, "none") || strings.EqualFold(raw, "null") {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		s := raw
		dst.Set(reflect.ValueOf(&s))
	case Number:
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", raw)
		}
		dst.SetFloat(v)
	case Count:
		if raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("not a whole number: %q", raw)
		}
		dst.SetInt(int64(v))
	case Flag:
		switch strings.ToLower(raw) {
		case "", "0", "no", "false":
			dst.SetInt(0)
		case "1", "yes", "true":
			dst.SetInt(1)
		default:
			return fmt.Errorf("want yes or no, got %q", raw)
		}
	}
	return nil
}
