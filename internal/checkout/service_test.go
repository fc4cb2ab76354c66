package checkout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validInput() PlaceOrderInput {
	return PlaceOrderInput{
		CustomerEmail:      "ana@example.com",
		CustomerName:       "Ana García",
		ShippingAddress:    "Calle Mayor 1",
		ShippingCity:       "Palma",
		ShippingPostalCode: "07001",
		Lines:              []CartLine{{ProductID: uuid.New(), Quantity: 1}},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid input passes", func(t *testing.T) {
		assert.Empty(t, validate(validInput()))
	})

	t.Run("rejects bad email", func(t *testing.T) {
		in := validInput()
		in.CustomerEmail = "not-an-email"
		errs := validate(in)
		assert.Contains(t, errs, "customer_email")
	})

	t.Run("rejects missing shipping fields", func(t *testing.T) {
		in := validInput()
		in.ShippingAddress = ""
		in.ShippingCity = ""
		in.ShippingPostalCode = ""
		errs := validate(in)
		assert.Contains(t, errs, "shipping_address")
		assert.Contains(t, errs, "shipping_city")
		assert.Contains(t, errs, "shipping_postal_code")
	})

	t.Run("rejects empty cart", func(t *testing.T) {
		in := validInput()
		in.Lines = nil
		errs := validate(in)
		assert.Equal(t, "order must contain at least one item", errs["items"])
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		in := validInput()
		in.Lines[0].Quantity = 0
		errs := validate(in)
		assert.Contains(t, errs, "quantity")
	})

	t.Run("rejects nil product id", func(t *testing.T) {
		in := validInput()
		in.Lines[0].ProductID = uuid.Nil
		errs := validate(in)
		assert.Contains(t, errs, "items")
	})
}

func TestFieldErrorsError(t *testing.T) {
	errs := FieldErrors{
		"quantity": "quantity must be at least 1",
		"items":    "order must contain at least one item",
	}
	assert.Equal(t,
		"items: order must contain at least one item; quantity: quantity must be at least 1",
		errs.Error())
}
