package datatype

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCast(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		datatype string
		want     string
		wantErr  bool
	}{
		{"integer", "42", Integer, "42", false},
		{"integer plus sign", "+7", Integer, "7", false},
		{"integer big", "123456789012345678901234567890", Integer, "123456789012345678901234567890", false},
		{"integer garbage", "4x", Integer, "", true},
		{"non-negative zero", "0", NonNegativeInteger, "0", false},
		{"non-negative negative", "-5", NonNegativeInteger, "", true},
		{"positive zero", "0", PositiveInteger, "", true},
		{"non-positive positive", "3", NonPositiveInteger, "", true},
		{"negative zero", "0", NegativeInteger, "", true},
		{"negative ok", "-1", NegativeInteger, "-1", false},
		{"byte overflow", "128", Byte, "", true},
		{"byte min", "-128", Byte, "-128", false},
		{"unsigned byte max", "255", UnsignedByte, "255", false},
		{"unsigned byte overflow", "256", UnsignedByte, "", true},
		{"unsigned negative", "-1", UnsignedInt, "", true},
		{"boolean upper", "TRUE", Boolean, "true", false},
		{"boolean digit", "0", Boolean, "false", false},
		{"boolean bad", "yes", Boolean, "", true},
		{"decimal", "+3.50", Decimal, "3.50", false},
		{"decimal leading dot", ".5", Decimal, ".5", false},
		{"decimal bad", "1e3", Decimal, "", true},
		{"double exponent", "1e3", Double, "1000", false},
		{"double inf", "INF", Double, "INF", false},
		{"float bad", "abc", Float, "", true},
		{"date year only", "2020", Date, "2020-01-01", false},
		{"date iso", "2021-03-04", Date, "2021-03-04", false},
		{"date lenient", "March 4, 2021", Date, "2021-03-04", false},
		{"date bad", "not a date", Date, "", true},
		{"date year month", "2021-03", Date, "2021-03-01", false},
		{"date with zone", "2021-03-04Z", Date, "2021-03-04", false},
		{"date short numeric", "1/2/3", Date, "", true},
		{"date ambiguous day month", "3/4/2021", Date, "", true},
		{"date bare number", "12345", Date, "12345-01-01", false},
		{"datetime time of day", "12:30", DateTime, "", true},
		{"datetime local", "2021-03-04T10:11", DateTime, "2021-03-04T10:11:00Z", false},
		{"datetime garbage", "soon", DateTime, "", true},
		{"datetime year only", "1999", DateTime, "1999-01-01T00:00:00Z", false},
		{"datetime rfc3339", "2021-03-04T10:11:12Z", DateTime, "2021-03-04T10:11:12Z", false},
		{"gYear", "2019", GYear, "2019", false},
		{"gYear bad", "19", GYear, "", true},
		{"anyURI", "http://example.org/x", AnyURI, "http://example.org/x", false},
		{"anyURI space", "http://example.org/a b", AnyURI, "", true},
		{"string passthrough", " keep ", String, " keep ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cast(tt.value, tt.datatype)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsCastError(err), "expected cast error, got %T", err)
				assert.Contains(t, err.Error(), "value does not match data type")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCastUnsupportedAndUnknown(t *testing.T) {
	_, err := Cast("P1D", XSD+"duration")
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.False(t, IsCastError(err))

	_, err = Cast("x", "http://example.org/madeUp")
	assert.True(t, errors.Is(err, ErrUnknownDatatype))
	assert.False(t, errors.Is(err, ErrUnsupported))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(NonNegativeInteger))
	assert.True(t, Supported(LangString))
	assert.False(t, Supported(WKTLiteral))
	assert.False(t, Supported("http://example.org/madeUp"))
}

func TestCastIsIdempotent(t *testing.T) {
	for _, c := range []struct{ value, datatype string }{
		{"2020", Date},
		{"TRUE", Boolean},
		{"+12", Integer},
		{"1e3", Double},
	} {
		first, err := Cast(c.value, c.datatype)
		require.NoError(t, err)
		second, err := Cast(first, c.datatype)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}
