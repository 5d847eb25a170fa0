package validation

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Last4 string `json:"last4" validate:"required,len=4,numeric"`
}

type sample struct {
	Name  string  `json:"name" validate:"required"`
	Email string  `json:"email" validate:"omitempty,email"`
	Qty   int     `json:"quantity" validate:"gte=1,lte=10"`
	Kind  string  `json:"kind" validate:"oneof=a b"`
	Card  *nested `json:"card" validate:"omitempty"`
}

func TestStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		err := Struct(sample{Name: "x", Qty: 1, Kind: "a"})
		require.NoError(t, err)
	})

	t.Run("field errors keyed by json name", func(t *testing.T) {
		err := Struct(sample{Email: "nope", Qty: 11, Kind: "c", Card: &nested{Last4: "12"}})
		require.Error(t, err)

		fields, ok := As(err)
		require.True(t, ok)
		assert.Equal(t, "is required", fields["name"])
		assert.Equal(t, "must be a valid email address", fields["email"])
		assert.Equal(t, "must be less than or equal to 10", fields["quantity"])
		assert.Equal(t, "must be one of: a b", fields["kind"])
		assert.Equal(t, "must be exactly 4 characters", fields["card.last4"])
	})
}

func TestErrors(t *testing.T) {
	e := Errors{}
	assert.NoError(t, e.Err())

	e.Add("b", "is bad")
	e.Add("a", "is worse")
	e.Add("a", "ignored")

	err := e.Err()
	require.Error(t, err)
	assert.Equal(t, "validation failed: a is worse; b is bad", err.Error())

	wrapped := errors.Wrap(err, "save coupon")
	fields, ok := As(wrapped)
	require.True(t, ok)
	assert.Len(t, fields, 2)
}
