package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"
)

// DefaultPaymentMethod is recorded when an entry arrives without one.
const DefaultPaymentMethod = "현금"

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"

	maxDescriptionLen = 200
)

type (
	EntryType string

	Date struct {
		time.Time
	}

	// Entry is a single income or expense record owned by one user.
	Entry struct {
		ID            string    `json:"id"`
		OwnerID       string    `json:"ownerId"`
		Type          EntryType `json:"type"`
		Date          Date      `json:"date"`
		Month         string    `json:"month"` // always Date.MonthKey()
		Description   string    `json:"description"`
		Category      string    `json:"category"`
		Amount        Money     `json:"amount"`
		PaymentMethod string    `json:"paymentMethod"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	// EntryInput carries the user-editable fields of an entry as submitted.
	EntryInput struct {
		Type           string `json:"type"`
		Date           string `json:"date"`
		Description    string `json:"description"`
		Category       string `json:"category"`
		CustomCategory string `json:"customCategory"`
		Amount         string `json:"amount"`
		PaymentMethod  string `json:"paymentMethod"`
	}

	// Budget is a monthly spending ceiling for one category.
	Budget struct {
		OwnerID   string    `json:"ownerId"`
		Category  string    `json:"category"`
		Amount    Money     `json:"amount"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidMonth       = errors.New("invalid month key")
	ErrInvalidType        = errors.New("entry type must be income or expense")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrMonthMismatch      = errors.New("month does not match date")
	ErrEmptyOwner         = errors.New("empty owner")
)

// ParseEntryType accepts "income" or "expense". Blank input means expense,
// which is what the entry form preselects.
func ParseEntryType(s string) (EntryType, error) {
	switch EntryType(strings.ToLower(strings.TrimSpace(s))) {
	case "", Expense:
		return Expense, nil
	case Income:
		return Income, nil
	default:
		return "", ErrInvalidType
	}
}

func (t EntryType) Valid() bool {
	return t == Income || t == Expense
}

// Label returns the display name used in exports.
func (t EntryType) Label() string {
	if t == Income {
		return "수입"
	}
	return "지출"
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the calendar date of now in now's location.
func Today(now time.Time) Date {
	y, m, d := now.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MonthKey is the YYYY-MM prefix of the ISO date.
func (d Date) MonthKey() string {
	s := d.String()
	if len(s) < 7 {
		return ""
	}
	return s[:7]
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseMonthKey validates a YYYY-MM key and returns it normalized.
func ParseMonthKey(s string) (string, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return t.Format(monthLayout), nil
}

// MonthRange returns the first and last day of a valid month key.
func MonthRange(key string) (Date, Date, error) {
	t, err := time.Parse(monthLayout, key)
	if err != nil {
		return Date{}, Date{}, fmt.Errorf("%w: %q", ErrInvalidMonth, key)
	}
	return Date{Time: t}, Date{Time: t.AddDate(0, 1, -1)}, nil
}

// CurrentMonthKey returns the month key of now.
func CurrentMonthKey(now time.Time) string {
	return Today(now).MonthKey()
}

// PreviousMonthKey returns the month before key. Key must be valid.
func PreviousMonthKey(key string) string {
	t, err := time.Parse(monthLayout, key)
	if err != nil {
		return ""
	}
	return t.AddDate(0, -1, 0).Format(monthLayout)
}

// Validate checks the stored invariants of an entry.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if !e.Type.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	if e.Month != e.Date.MonthKey() {
		return &ValidationError{Field: "month", Err: ErrMonthMismatch}
	}
	if strings.TrimSpace(e.Category) == "" {
		return &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if len([]rune(e.Description)) > maxDescriptionLen {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	return nil
}

// Apply validates in and overwrites the mutable fields of e with it.
// today is used when the input date is blank. Identity fields and
// CreatedAt are left untouched. On error e is not modified.
func (e *Entry) Apply(in EntryInput, today Date) error {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	category, err := ResolveCategory(in.Category, in.CustomCategory)
	if err != nil {
		return &ValidationError{Field: "category", Err: err}
	}
	typ, err := ParseEntryType(in.Type)
	if err != nil {
		return &ValidationError{Field: "type", Err: err}
	}
	date := today
	if strings.TrimSpace(in.Date) != "" {
		if date, err = ParseDate(in.Date); err != nil {
			return &ValidationError{Field: "date", Err: err}
		}
	}
	desc := strings.TrimSpace(in.Description)
	if len([]rune(desc)) > maxDescriptionLen {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	payment := strings.TrimSpace(in.PaymentMethod)
	if payment == "" {
		payment = DefaultPaymentMethod
	}

	e.Type = typ
	e.Date = date
	e.Month = date.MonthKey()
	e.Description = desc
	e.Category = category
	e.Amount = amount
	e.PaymentMethod = payment
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(b.Category) == "" {
		return &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	if b.Amount.Cents <= 0 {
		return &ValidationError{Field: "amount", Err: ErrNonPositiveAmount}
	}
	return nil
}
