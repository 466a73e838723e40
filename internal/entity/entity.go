// Package entity defines the detection data model shared by the matcher,
// the AI extractor, the merger and the alias registry.
package entity

import (
	"strings"
)

// Type is the kind of a detected entity. Values are lower_snake_case.
type Type string

// Known entity types.
const (
	Email         Type = "email"
	Phone         Type = "phone"
	SSN           Type = "ssn"
	CreditCard    Type = "credit_card"
	APIKey        Type = "api_key"
	IPAddress     Type = "ip_address"
	PersonName    Type = "person_name"
	Address       Type = "address"
	CompanyName   Type = "company_name"
	DateOfBirth   Type = "date_of_birth"
	AccountNumber Type = "account_number"
	Password      Type = "password"
	PrivateKey    Type = "private_key"
	DatabaseURL   Type = "database_url"
	JWT           Type = "jwt"
	MACAddress    Type = "mac_address"
	Custom        Type = "custom"
)

// Known lists every built-in type in a stable order.
var Known = []Type{
	Email, Phone, SSN, CreditCard, APIKey, IPAddress, PersonName, Address,
	CompanyName, DateOfBirth, AccountNumber, Password, PrivateKey, DatabaseURL,
	JWT, MACAddress, Custom,
}

var labels = map[Type]string{
	Email:         "EMAIL",
	Phone:         "PHONE",
	SSN:           "SSN",
	CreditCard:    "CREDIT_CARD",
	APIKey:        "API_KEY",
	IPAddress:     "IP",
	PersonName:    "PERSON",
	Address:       "ADDRESS",
	CompanyName:   "COMPANY",
	DateOfBirth:   "DOB",
	AccountNumber: "ACCOUNT",
	Password:      "PASSWORD",
	PrivateKey:    "PRIVATE_KEY",
	DatabaseURL:   "DATABASE_URL",
	JWT:           "JWT",
	MACAddress:    "MAC",
	Custom:        "CUSTOM",
}

var fixedFormat = map[Type]bool{
	Email:       true,
	Phone:       true,
	SSN:         true,
	CreditCard:  true,
	APIKey:      true,
	IPAddress:   true,
	PrivateKey:  true,
	DatabaseURL: true,
	JWT:         true,
	MACAddress:  true,
}

// ParseType normalizes a type name ("EMAIL_ADDRESS", "Person Name") into a Type.
// Presidio entity names are mapped onto the built-in set; anything else is
// kept as a custom-family type.
func ParseType(s string) Type {
	s = strings.TrimSpace(s)
	if t, ok := presidioNames[strings.ToUpper(s)]; ok {
		return t
	}
	s = strings.ToLower(s)
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Type(s)
}

var presidioNames = map[string]Type{
	"EMAIL_ADDRESS":  Email,
	"PHONE_NUMBER":   Phone,
	"US_SSN":         SSN,
	"CREDIT_CARD":    CreditCard,
	"API_KEY":        APIKey,
	"IP_ADDRESS":     IPAddress,
	"PERSON":         PersonName,
	"LOCATION":       Address,
	"ORGANIZATION":   CompanyName,
	"DATE_OF_BIRTH":  DateOfBirth,
	"US_BANK_NUMBER": AccountNumber,
	"PASSWORD":       Password,
	"PRIVATE_KEY":    PrivateKey,
	"DATABASE_URL":   DatabaseURL,
	"JWT":            JWT,
	"MAC_ADDRESS":    MACAddress,
}

// Label is the uppercase token used inside aliases ("[PERSON_1]").
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return strings.ToUpper(string(t))
}

// FixedFormat reports whether the type has a syntactic shape a regex can pin
// down exactly. Free-form types (names, addresses) are better bounded by the model.
func (t Type) FixedFormat() bool { return fixedFormat[t] }

// IsCustom reports whether t belongs to the custom family: the Custom type
// itself or any type not in the built-in set.
func (t Type) IsCustom() bool {
	if t == Custom {
		return true
	}
	_, known := labels[t]
	return !known
}

// Compatible reports whether findings of types a and b may describe the same entity.
func Compatible(a, b Type) bool {
	return a == b || a.IsCustom() || b.IsCustom()
}

// Source records which detector produced a finding.
type Source string

const (
	SourcePattern Source = "pattern"
	SourceAI      Source = "ai"
	SourceBoth    Source = "both"
)

// Combine merges two sources.
func (s Source) Combine(o Source) Source {
	if s == "" {
		return o
	}
	if o == "" || s == o {
		return s
	}
	return SourceBoth
}

// Span is a byte range within one page of content. Page is 0 for single-part input.
type Span struct {
	Page  int `json:"page,omitempty"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans on the same page share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Page == o.Page && s.Start < o.End && o.Start < s.End
}

// OverlapRatio is the shared length divided by the shorter span's length.
func (s Span) OverlapRatio(o Span) float64 {
	if !s.Overlaps(o) {
		return 0
	}
	lo, hi := max(s.Start, o.Start), min(s.End, o.End)
	shorter := min(s.Len(), o.Len())
	if shorter <= 0 {
		return 0
	}
	return float64(hi-lo) / float64(shorter)
}

// Before orders spans by page, start, then longer first.
func (s Span) Before(o Span) bool {
	if s.Page != o.Page {
		return s.Page < o.Page
	}
	if s.Start != o.Start {
		return s.Start < o.Start
	}
	return s.Len() > o.Len()
}

// Finding is one located occurrence produced by a detector.
type Finding struct {
	Span       Span    `json:"span"`
	Type       Type    `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	Recognizer string  `json:"recognizer,omitempty"`
}

// Entity is a distinct sensitive value with all of its occurrences.
type Entity struct {
	Value      string  `json:"value"`
	Canonical  string  `json:"canonical"`
	Type       Type    `json:"entity_type"`
	Spans      []Span  `json:"spans"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	Alias      string  `json:"alias,omitempty"`
}

// Occurrences returns the number of spans.
func (e Entity) Occurrences() int { return len(e.Spans) }

// First returns the earliest span.
func (e Entity) First() Span {
	if len(e.Spans) == 0 {
		return Span{}
	}
	return e.Spans[0]
}
