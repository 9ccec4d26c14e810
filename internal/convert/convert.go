// Package convert coerces decoded JSON values into declared Go types.
package convert

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Coerce converts value into the target type. JSON numbers, strings and
// objects are converted weakly, so float64(3) becomes int(3), "2024-01-02T00:00:00Z"
// becomes a time.Time and a map becomes a struct. A nil value stays nil.
func Coerce(value interface{}, target reflect.Type) (interface{}, error) {
	if value == nil || target == nil {
		return value, nil
	}

	source := reflect.TypeOf(value)
	if source.AssignableTo(target) {
		return value, nil
	}
	if source.Kind() == reflect.Ptr {
		return nil, fmt.Errorf("cannot convert %s to %s", source, target)
	}

	out := reflect.New(target)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out.Interface(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(value); err != nil {
		return nil, fmt.Errorf("cannot convert %T to %s: %w", value, target, err)
	}

	return out.Elem().Interface(), nil
}

// To is the generic form of Coerce
func To[T any](value interface{}) (T, error) {
	var zero T
	if v, ok := value.(T); ok {
		return v, nil
	}

	target := reflect.TypeOf((*T)(nil)).Elem()
	if target.Kind() == reflect.Interface {
		return zero, fmt.Errorf("%T does not implement %s", value, target)
	}

	converted, err := Coerce(value, target)
	if err != nil || converted == nil {
		return zero, err
	}
	return converted.(T), nil
}
