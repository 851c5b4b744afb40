package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Phone string `json:"phone" validate:"required,phone"`
	OTP   string `json:"otp" validate:"omitempty,len=6,numeric"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(sample{Phone: "+1 (555) 123-4567", OTP: "012345"}))
}

func TestStruct_ReportsJSONNames(t *testing.T) {
	err := Struct(sample{Phone: "12", OTP: "12ab"})
	assert.ErrorContains(t, err, "field 'phone' failed 'phone'")
	assert.ErrorContains(t, err, "field 'otp' failed 'len'")
}
