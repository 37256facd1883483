package market

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// OptionalFloat is a float that the upstream payload may omit or send as null.
// The zero value is None.
type OptionalFloat struct {
	value float64
	valid bool
}

// Some wraps a present value.
func Some(v float64) OptionalFloat { return OptionalFloat{value: v, valid: true} }

// None is the absent value.
func None() OptionalFloat { return OptionalFloat{} }

// Get returns the value and whether it was present.
func (o OptionalFloat) Get() (float64, bool) { return o.value, o.valid }

// Valid reports whether a value is present.
func (o OptionalFloat) Valid() bool { return o.valid }

// OrZero returns the value, or 0 when absent.
func (o OptionalFloat) OrZero() float64 {
	if !o.valid {
		return 0
	}
	return o.value
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(o.value, 'f', -1, 64)), nil
}

func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
