package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"EMAIL_ADDRESS", Email},
		{"PHONE_NUMBER", Phone},
		{"person_name", PersonName},
		{"PERSON", PersonName},
		{" Employee ID ", Type("employee_id")},
		{"badge-number", Type("badge_number")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseType(tt.in))
		})
	}
}

func TestTypeProperties(t *testing.T) {
	assert.Equal(t, "PERSON", PersonName.Label())
	assert.Equal(t, "EMPLOYEE_ID", Type("employee_id").Label())
	assert.True(t, Email.FixedFormat())
	assert.False(t, PersonName.FixedFormat())
	assert.True(t, Custom.IsCustom())
	assert.True(t, Type("employee_id").IsCustom())
	assert.False(t, Phone.IsCustom())

	assert.True(t, Compatible(Email, Email))
	assert.True(t, Compatible(Type("employee_id"), AccountNumber))
	assert.False(t, Compatible(Email, Phone))
}

func TestSpanOverlap(t *testing.T) {
	a := Span{Start: 0, End: 10}
	b := Span{Start: 5, End: 8}
	c := Span{Start: 10, End: 12}
	d := Span{Page: 1, Start: 0, End: 10}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
	assert.False(t, a.Overlaps(d))
	assert.InDelta(t, 1.0, a.OverlapRatio(b), 1e-9)
	assert.InDelta(t, 0.0, a.OverlapRatio(c), 1e-9)
	assert.InDelta(t, 0.5, Span{Start: 0, End: 4}.OverlapRatio(Span{Start: 2, End: 8}), 1e-9)

	assert.True(t, a.Before(b))
	assert.True(t, Span{Start: 0, End: 10}.Before(Span{Start: 0, End: 3}))
	assert.True(t, a.Before(d))
}

func TestSourceCombine(t *testing.T) {
	assert.Equal(t, SourcePattern, Source("").Combine(SourcePattern))
	assert.Equal(t, SourceAI, SourceAI.Combine(SourceAI))
	assert.Equal(t, SourceBoth, SourcePattern.Combine(SourceAI))
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		in   string
		want string
	}{
		{"name case and spaces", PersonName, "  John   SMITH ", "john smith"},
		{"name trailing punctuation", PersonName, "John Smith.", "john smith"},
		{"email domain only", Email, "Jane.Doe@Example.COM", "Jane.Doe@example.com"},
		{"phone digits", Phone, "(555) 111-2222", "5551112222"},
		{"phone keeps plus", Phone, "+44 20 7946 0958", "+442079460958"},
		{"phone drops nanp country code", Phone, "+1 555-111-2222", "5551112222"},
		{"phone drops bare nanp country code", Phone, "1 (555) 111-2222", "5551112222"},
		{"card digits", CreditCard, "4111 1111 1111 1111", "4111111111111111"},
		{"ssn digits", SSN, "123-45-6789", "123456789"},
		{"api key exact", APIKey, "sk-AbCdEf", "sk-AbCdEf"},
		{"mac separators", MACAddress, "AA-BB-CC-DD-EE-FF", "aa:bb:cc:dd:ee:ff"},
		{"custom collapsed", Type("employee_id"), "EMP  42", "EMP 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.typ, tt.in))
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"john", "o'neil", "smith"}, Tokens("John O'Neil-Smith"))
}
