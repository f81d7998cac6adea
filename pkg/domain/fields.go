package domain

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrReadOnlyField is returned when a caller attempts to assign id or filepath.
var ErrReadOnlyField = errors.New("field is read-only")

// Field returns the named field value. ok is false when the field is absent
// or holds nil.
func (s *Sample) Field(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	switch name {
	case FieldID:
		return s.ID, true
	case FieldFilePath:
		return s.FilePath, true
	case FieldMetadata:
		if s.Metadata == nil {
			return nil, false
		}
		return s.Metadata, true
	case FieldGroundTruth:
		if s.GroundTruth == nil {
			return nil, false
		}
		return s.GroundTruth, true
	case FieldTags:
		if s.Tags == nil {
			return []string{}, true
		}
		return s.Tags, true
	}
	v, ok := s.Fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// HasField reports whether the named field is populated.
func (s *Sample) HasField(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// GetField is the soft lookup used by the exporters: a nil sample, a missing
// field or a nil value all yield def.
func GetField(s *Sample, name string, def any) any {
	if v, ok := s.Field(name); ok {
		return v
	}
	return def
}

// SetField assigns a field. Typed fields only accept values of their type
// (or the generic JSON form of it for tags).
func (s *Sample) SetField(name string, value any) error {
	switch name {
	case FieldID, FieldFilePath:
		return fmt.Errorf("set %s: %w", name, ErrReadOnlyField)
	case FieldMetadata:
		switch v := value.(type) {
		case nil:
			s.Metadata = nil
		case *ImageMetadata:
			s.Metadata = v
		case ImageMetadata:
			s.Metadata = &v
		default:
			return fmt.Errorf("set %s: unsupported type %T", name, value)
		}
		return nil
	case FieldGroundTruth:
		switch v := value.(type) {
		case nil:
			s.GroundTruth = nil
		case *Detections:
			s.GroundTruth = v
		case Detections:
			s.GroundTruth = &v
		default:
			return fmt.Errorf("set %s: unsupported type %T", name, value)
		}
		return nil
	case FieldTags:
		tags, err := StringList(value)
		if err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		s.Tags = tags
		return nil
	}
	if s.Fields == nil {
		s.Fields = make(map[string]any)
	}
	s.Fields[name] = value
	return nil
}

// ClearField resets a field to its unset state.
func (s *Sample) ClearField(name string) {
	switch name {
	case FieldMetadata:
		s.Metadata = nil
	case FieldGroundTruth:
		s.GroundTruth = nil
	case FieldTags:
		s.Tags = nil
	case FieldID, FieldFilePath:
	default:
		delete(s.Fields, name)
	}
}

// UpdateFields applies SetField for every entry. It stops at the first error.
func (s *Sample) UpdateFields(fields map[string]any) error {
	for k, v := range fields {
		if err := s.SetField(k, v); err != nil {
			return err
		}
	}
	return nil
}

// StringList converts []string or a JSON-decoded []any of strings.
func StringList(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", e)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", value)
	}
}

// Truthy reports whether v is a non-empty value: nil, false, numeric zero and
// empty strings, slices and maps are all falsy.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
