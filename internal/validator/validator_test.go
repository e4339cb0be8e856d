package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/scalable-commerce-system/internal/model"
)

// TestNew verifies that New() returns a properly configured validator
func TestNew(t *testing.T) {
	v := New()
	require.NotNil(t, v, "New() should return a non-nil validator")
}

// TestNotblankValidator tests the custom notblank validation
func TestNotblankValidator(t *testing.T) {
	v := New()

	type TestStruct struct {
		Name string `validate:"notblank"`
	}

	testCases := []struct {
		name        string
		input       string
		expectError bool
		description string
	}{
		{
			name:        "valid_string",
			input:       "valid",
			expectError: false,
			description: "Normal string should pass",
		},
		{
			name:        "valid_with_spaces",
			input:       "  valid  ",
			expectError: false,
			description: "String with leading/trailing spaces should pass (has content)",
		},
		{
			name:        "whitespace_only_spaces",
			input:       "   ",
			expectError: true,
			description: "Whitespace-only (spaces) should fail",
		},
		{
			name:        "whitespace_mixed",
			input:       " \t\n ",
			expectError: true,
			description: "Mixed whitespace-only should fail",
		},
		{
			name:        "empty_string",
			input:       "",
			expectError: true,
			description: "Empty string should fail (TrimSpace returns empty)",
		},
		{
			name:        "unicode_content",
			input:       "日本語",
			expectError: false,
			description: "Unicode content should pass",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := TestStruct{Name: tc.input}
			err := v.Struct(ts)

			if tc.expectError {
				assert.Error(t, err, tc.description)
			} else {
				assert.NoError(t, err, tc.description)
			}
		})
	}
}

// TestCardtypeValidator tests the custom cardtype validation
func TestCardtypeValidator(t *testing.T) {
	v := New()

	type TestStruct struct {
		CardType string `validate:"cardtype"`
	}

	testCases := []struct {
		name        string
		input       string
		expectError bool
		description string
	}{
		{
			name:        "samsung",
			input:       "SAMSUNG",
			expectError: false,
			description: "SAMSUNG is an accepted card type",
		},
		{
			name:        "kb",
			input:       "KB",
			expectError: false,
			description: "KB is an accepted card type",
		},
		{
			name:        "hyundai",
			input:       "HYUNDAI",
			expectError: false,
			description: "HYUNDAI is an accepted card type",
		},
		{
			name:        "lowercase_rejected",
			input:       "samsung",
			expectError: true,
			description: "Card types are case sensitive, matching the gateway contract",
		},
		{
			name:        "unknown_network",
			input:       "VISA",
			expectError: true,
			description: "Card types outside the gateway's set should fail",
		},
		{
			name:        "empty_string",
			input:       "",
			expectError: true,
			description: "Empty string is not an accepted card type",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := TestStruct{CardType: tc.input}
			err := v.Struct(ts)

			if tc.expectError {
				assert.Error(t, err, tc.description)
			} else {
				assert.NoError(t, err, tc.description)
			}
		})
	}
}

// TestCardtypeOnNonStringField tests that cardtype handles non-string fields gracefully
func TestCardtypeOnNonStringField(t *testing.T) {
	v := New()

	type TestStructInt struct {
		Value int `validate:"cardtype"`
	}

	ts := TestStructInt{Value: 0}
	err := v.Struct(ts)
	assert.NoError(t, err, "cardtype should pass for non-string types")
}

// TestNotblankOnNonStringField tests that notblank handles non-string fields gracefully
func TestNotblankOnNonStringField(t *testing.T) {
	v := New()

	// notblank on int should pass (returns true for non-string types)
	type TestStructInt struct {
		Value int `validate:"notblank"`
	}

	ts := TestStructInt{Value: 0}
	err := v.Struct(ts)
	assert.NoError(t, err, "notblank should pass for non-string types")
}

// TestPlaceOrderRequestValidation exercises the tags on the real order DTO.
func TestPlaceOrderRequestValidation(t *testing.T) {
	v := New()

	valid := func() model.PlaceOrderRequest {
		return model.PlaceOrderRequest{
			UserID:     "user_001",
			Items:      []model.PlaceOrderItem{{ProductID: 10, Quantity: 1}},
			UsedPoints: 0,
			CardType:   "SAMSUNG",
			CardNo:     "1234-5678-9814-1451",
		}
	}

	t.Run("valid_request", func(t *testing.T) {
		req := valid()
		assert.NoError(t, v.Struct(req))
	})

	t.Run("blank_user_id", func(t *testing.T) {
		req := valid()
		req.UserID = "   "
		assert.Error(t, v.Struct(req))
	})

	t.Run("no_items", func(t *testing.T) {
		req := valid()
		req.Items = nil
		assert.Error(t, v.Struct(req))
	})

	t.Run("zero_quantity_item", func(t *testing.T) {
		req := valid()
		req.Items[0].Quantity = 0
		assert.Error(t, v.Struct(req), "dive must validate each item")
	})

	t.Run("negative_points", func(t *testing.T) {
		req := valid()
		req.UsedPoints = -1
		assert.Error(t, v.Struct(req))
	})

	t.Run("bad_card_type", func(t *testing.T) {
		req := valid()
		req.CardType = "DINERS"
		assert.Error(t, v.Struct(req))
	})

	t.Run("missing_card_no", func(t *testing.T) {
		req := valid()
		req.CardNo = ""
		assert.Error(t, v.Struct(req))
	})
}
