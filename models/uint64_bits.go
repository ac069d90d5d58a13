package models

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"gorm.io/gorm/schema"
)

// Uint64BitsSerializer stores a uint64 column as the int64 with the same
// bits. database/sql drivers reject uint64 values with the high bit set, so
// plain uint64 columns cannot hold the full range.
type Uint64BitsSerializer struct{}

func init() {
	schema.RegisterSerializer("uint64bits", Uint64BitsSerializer{})
}

// Scan implements schema.SerializerInterface.
func (Uint64BitsSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	target := field.ReflectValueOf(ctx, dst)
	if dbValue == nil {
		target.Set(reflect.Zero(field.FieldType))
		return nil
	}

	var bits int64
	switch v := dbValue.(type) {
	case int64:
		bits = v
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", field.Name, err)
		}
		bits = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", field.Name, err)
		}
		bits = n
	default:
		return fmt.Errorf("scanning %s: unsupported column value %T", field.Name, dbValue)
	}

	u := uint64(bits)
	if field.FieldType.Kind() == reflect.Ptr {
		target.Set(reflect.ValueOf(&u))
	} else {
		target.SetUint(u)
	}
	return nil
}

// Value implements schema.SerializerValuerInterface.
func (Uint64BitsSerializer) Value(_ context.Context, _ *schema.Field, _ reflect.Value, fieldValue interface{}) (interface{}, error) {
	return Uint64Bits(fieldValue), nil
}

// Uint64Bits converts a uint64 or *uint64 to the value stored by
// Uint64BitsSerializer. Nil pointers become NULL; other values pass through.
// Map based updates bypass serializers and go through this instead.
func Uint64Bits(v interface{}) interface{} {
	switch u := v.(type) {
	case uint64:
		return int64(u)
	case *uint64:
		if u == nil {
			return nil
		}
		return int64(*u)
	}
	return v
}
