package kinds

import (
	"encoding/json"
	"fmt"

	"branchwarden/internal/policy"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
)

// settingsKind implements policy.Kind for a settings struct T. T's json tags
// name the server settings keys; definition documents use the same keys.
type settingsKind[T any] struct {
	name        string
	displayName string
	description string
	typeID      uuid.UUID
	fields      []policy.Field

	// defaults seeds definition settings before decoding. Server settings
	// are taken as returned.
	defaults  func(*T)
	normalize func(*T)
	validate  func(T) error
	compare   []cmp.Option
}

func (k *settingsKind[T]) Name() string           { return k.name }
func (k *settingsKind[T]) DisplayName() string    { return k.displayName }
func (k *settingsKind[T]) TypeID() uuid.UUID      { return k.typeID }
func (k *settingsKind[T]) Description() string    { return k.description }
func (k *settingsKind[T]) Fields() []policy.Field { return k.fields }

func (k *settingsKind[T]) DecodeSettings(raw map[string]any) (any, error) {
	var s T
	if k.defaults != nil {
		k.defaults(&s)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &s,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%s settings: %w", k.name, err)
	}
	if k.normalize != nil {
		k.normalize(&s)
	}
	if k.validate != nil {
		if err := k.validate(s); err != nil {
			return nil, fmt.Errorf("%s settings: %w", k.name, err)
		}
	}
	return s, nil
}

func (k *settingsKind[T]) DecodeServerSettings(raw json.RawMessage) (any, error) {
	var s T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s server settings: %w", k.name, err)
		}
	}
	if k.normalize != nil {
		k.normalize(&s)
	}
	return s, nil
}

func (k *settingsKind[T]) EncodeSettings(settings any) (map[string]any, error) {
	s, err := k.cast(settings)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%s settings: %w", k.name, err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%s settings: %w", k.name, err)
	}
	return out, nil
}

func (k *settingsKind[T]) EqualSettings(desired, server any) bool {
	d, err := k.cast(desired)
	if err != nil {
		return false
	}
	s, err := k.cast(server)
	if err != nil {
		return false
	}
	opts := append([]cmp.Option{cmpopts.EquateEmpty()}, k.compare...)
	return cmp.Equal(d, s, opts...)
}

func (k *settingsKind[T]) cast(v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	switch t := v.(type) {
	case T:
		return t, nil
	case *T:
		if t == nil {
			return zero, nil
		}
		return *t, nil
	default:
		return zero, fmt.Errorf("%s settings: unexpected type %T", k.name, v)
	}
}

// unorderedStrings compares the named []string field as a set.
func unorderedStrings(field string) cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		sf, ok := p.Last().(cmp.StructField)
		return ok && sf.Name() == field
	}, cmpopts.SortSlices(func(a, b string) bool { return a < b }))
}
