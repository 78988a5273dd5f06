// Package datatype casts literal values into XSD datatypes, enforcing the
// lexical syntax and sign constraints each datatype implies.
package datatype

import (
	"math/big"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// XSD is the XML Schema datatype namespace.
const XSD = "http://www.w3.org/2001/XMLSchema#"

// Supported datatype IRIs.
const (
	String             = XSD + "string"
	Boolean            = XSD + "boolean"
	Integer            = XSD + "integer"
	Int                = XSD + "int"
	Long               = XSD + "long"
	Short              = XSD + "short"
	Byte               = XSD + "byte"
	UnsignedLong       = XSD + "unsignedLong"
	UnsignedInt        = XSD + "unsignedInt"
	UnsignedShort      = XSD + "unsignedShort"
	UnsignedByte       = XSD + "unsignedByte"
	NonNegativeInteger = XSD + "nonNegativeInteger"
	PositiveInteger    = XSD + "positiveInteger"
	NonPositiveInteger = XSD + "nonPositiveInteger"
	NegativeInteger    = XSD + "negativeInteger"
	Decimal            = XSD + "decimal"
	Float              = XSD + "float"
	Double             = XSD + "double"
	Date               = XSD + "date"
	DateTime           = XSD + "dateTime"
	GYear              = XSD + "gYear"
	AnyURI             = XSD + "anyURI"
)

// LangString is rdf:langString, treated like string.
const LangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"

// WKTLiteral is the GeoSPARQL geometry literal type.
const WKTLiteral = "http://www.opengis.net/ont/geosparql#wktLiteral"

type sign int

const (
	anySign sign = iota
	nonNegative
	positive
	nonPositive
	negative
)

type integerSpec struct {
	bits     int
	unsigned bool
	sign     sign
}

var integers = map[string]integerSpec{
	Integer:            {},
	Int:                {bits: 32},
	Long:               {bits: 64},
	Short:              {bits: 16},
	Byte:               {bits: 8},
	UnsignedLong:       {bits: 64, unsigned: true, sign: nonNegative},
	UnsignedInt:        {bits: 32, unsigned: true, sign: nonNegative},
	UnsignedShort:      {bits: 16, unsigned: true, sign: nonNegative},
	UnsignedByte:       {bits: 8, unsigned: true, sign: nonNegative},
	NonNegativeInteger: {sign: nonNegative},
	PositiveInteger:    {sign: positive},
	NonPositiveInteger: {sign: nonPositive},
	NegativeInteger:    {sign: negative},
}

// recognized lists datatypes that are valid in a range but have no caster.
var recognized = map[string]bool{
	XSD + "duration":         true,
	XSD + "time":             true,
	XSD + "gYearMonth":       true,
	XSD + "gMonth":           true,
	XSD + "gDay":             true,
	XSD + "gMonthDay":        true,
	XSD + "hexBinary":        true,
	XSD + "base64Binary":     true,
	XSD + "normalizedString": true,
	XSD + "token":            true,
	XSD + "language":         true,
	XSD + "NMTOKEN":          true,
	XSD + "Name":             true,
	XSD + "NCName":           true,
	XSD + "QName":            true,
	XSD + "dateTimeStamp":    true,
	WKTLiteral:               true,

	"http://www.w3.org/1999/02/22-rdf-syntax-ns#HTML":       true,
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#XMLLiteral": true,
}

var (
	integerPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)
	yearPattern    = regexp.MustCompile(`^-?[0-9]{4,}$`)
)

// Supported reports whether Cast can convert values into datatype.
func Supported(datatype string) bool {
	if _, ok := integers[datatype]; ok {
		return true
	}
	switch datatype {
	case String, LangString, Boolean, Decimal, Float, Double, Date, DateTime, GYear, AnyURI:
		return true
	}
	return false
}

// Cast converts value into the lexical space of datatype and returns the
// canonical form. Errors are *CastError for syntax or sign violations,
// ErrUnsupported for recognized datatypes without a caster, and
// ErrUnknownDatatype otherwise.
func Cast(value, datatype string) (string, error) {
	if spec, ok := integers[datatype]; ok {
		return castInteger(value, datatype, spec)
	}
	switch datatype {
	case String, LangString:
		return value, nil
	case Boolean:
		return castBoolean(value)
	case Decimal:
		return castDecimal(value)
	case Float:
		return castFloat(value, Float, 32)
	case Double:
		return castFloat(value, Double, 64)
	case Date:
		return castDate(value)
	case DateTime:
		return castDateTime(value)
	case GYear:
		return castYear(value)
	case AnyURI:
		return castURI(value)
	}
	if recognized[datatype] {
		return "", &UnsupportedError{Datatype: datatype}
	}
	return "", &UnknownDatatypeError{Datatype: datatype}
}

func castInteger(value, datatype string, spec integerSpec) (string, error) {
	v := strings.TrimSpace(value)
	if !integerPattern.MatchString(v) {
		return "", newCastError(value, datatype, "not an integer")
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "+"), 10)
	if !ok {
		return "", newCastError(value, datatype, "not an integer")
	}
	if err := checkSign(n.Sign(), spec.sign); err != "" {
		return "", newCastError(value, datatype, err)
	}
	if spec.bits > 0 {
		if spec.unsigned {
			if n.Sign() < 0 || n.BitLen() > spec.bits {
				return "", newCastError(value, datatype, "out of range")
			}
		} else if _, err := strconv.ParseInt(n.String(), 10, spec.bits); err != nil {
			return "", newCastError(value, datatype, "out of range")
		}
	}
	return n.String(), nil
}

func checkSign(s int, want sign) string {
	switch want {
	case nonNegative:
		if s < 0 {
			return "must be non-negative"
		}
	case positive:
		if s <= 0 {
			return "must be positive"
		}
	case nonPositive:
		if s > 0 {
			return "must be non-positive"
		}
	case negative:
		if s >= 0 {
			return "must be negative"
		}
	}
	return ""
}

func castBoolean(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1":
		return "true", nil
	case "false", "0":
		return "false", nil
	}
	return "", newCastError(value, Boolean, "not a boolean")
}

func castDecimal(value string) (string, error) {
	v := strings.TrimSpace(value)
	if !decimalPattern.MatchString(v) {
		return "", newCastError(value, Decimal, "not a decimal")
	}
	return strings.TrimPrefix(v, "+"), nil
}

func castFloat(value, datatype string, bits int) (string, error) {
	v := strings.TrimSpace(value)
	switch v {
	case "INF", "-INF", "NaN":
		return v, nil
	}
	f, err := strconv.ParseFloat(v, bits)
	if err != nil {
		return "", newCastError(value, datatype, "not a number")
	}
	return strconv.FormatFloat(f, 'g', -1, bits), nil
}

func castYear(value string) (string, error) {
	v := strings.TrimSpace(value)
	if !yearPattern.MatchString(v) {
		return "", newCastError(value, GYear, "not a year")
	}
	return v, nil
}

func castDate(value string) (string, error) {
	v := strings.TrimSpace(value)
	if yearPattern.MatchString(v) {
		return v + "-01-01", nil
	}
	t, ok := parseTime(v, dateLayouts)
	if !ok {
		return "", newCastError(value, Date, "not a date")
	}
	return t.Format("2006-01-02"), nil
}

func castDateTime(value string) (string, error) {
	v := strings.TrimSpace(value)
	if yearPattern.MatchString(v) {
		return v + "-01-01T00:00:00Z", nil
	}
	t, ok := parseTime(v, dateTimeLayouts)
	if !ok {
		return "", newCastError(value, DateTime, "not a date/time")
	}
	return t.Format(time.RFC3339Nano), nil
}

var (
	dateLayouts = []string{
		"2006-01-02",
		"2006-01-02Z07:00",
		"2006-01",
	}
	dateTimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
		"2006-01",
	}
	fullYearPattern = regexp.MustCompile(`(^|[^0-9])[0-9]{4}([^0-9]|$)`)
)

// parseTime accepts the XSD lexical forms first. Other formats go through
// dateparse in strict mode and must spell out a four digit year, so that
// times of day or short numeric dates are not read as year zero.
func parseTime(v string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	if !fullYearPattern.MatchString(v) {
		return time.Time{}, false
	}
	t, err := dateparse.ParseStrict(v)
	if err != nil || t.Year() == 0 {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func castURI(value string) (string, error) {
	v := strings.TrimSpace(value)
	u, err := url.Parse(v)
	if err != nil || v == "" || strings.ContainsAny(v, " \t\n") {
		return "", newCastError(value, AnyURI, "not a URI")
	}
	return u.String(), nil
}
