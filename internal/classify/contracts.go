package classify

import (
	"context"
	"encoding/json"
)

// Result is the structured outcome of classifying extracted text. The Type
// discriminant selects which detail struct is populated; Fields is the
// legacy generic bag some providers fill instead of (or in addition to) the
// typed sub-object.
type Result struct {
	Type    string            `json:"type"`
	Title   string            `json:"title,omitempty"`
	Summary string            `json:"summary,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`

	Event    *EventDetails    `json:"event,omitempty"`
	Contact  *ContactDetails  `json:"contact,omitempty"`
	Expense  *ExpenseDetails  `json:"expense,omitempty"`
	Address  *AddressDetails  `json:"address,omitempty"`
	Note     *NoteDetails     `json:"note,omitempty"`
	Document *DocumentDetails `json:"document,omitempty"`

	// Raw is the validated provider payload, persisted verbatim.
	Raw json.RawMessage `json:"-"`
}

type EventDetails struct {
	Title    string `json:"title,omitempty"`
	Date     string `json:"date,omitempty"` // YYYY-MM-DD
	Time     string `json:"time,omitempty"`
	Location string `json:"location,omitempty"`
}

type ContactDetails struct {
	Title string `json:"title,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type ExpenseDetails struct {
	Title    string `json:"title,omitempty"`
	Merchant string `json:"merchant,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"` // ISO 4217
	Date     string `json:"date,omitempty"`
}

type AddressDetails struct {
	Title   string `json:"title,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

type NoteDetails struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

type DocumentDetails struct {
	Title   string `json:"title,omitempty"`
	Subject string `json:"subject,omitempty"`
	Date    string `json:"date,omitempty"`
}

// BestTitle returns the top-level title, falling back to the typed
// sub-object's title when the provider nested it.
func (r *Result) BestTitle() string {
	if r.Title != "" {
		return r.Title
	}
	switch {
	case r.Event != nil && r.Event.Title != "":
		return r.Event.Title
	case r.Contact != nil && r.Contact.Title != "":
		return r.Contact.Title
	case r.Expense != nil && r.Expense.Title != "":
		return r.Expense.Title
	case r.Address != nil && r.Address.Title != "":
		return r.Address.Title
	case r.Note != nil && r.Note.Title != "":
		return r.Note.Title
	case r.Document != nil && r.Document.Title != "":
		return r.Document.Title
	}
	return ""
}

// Classifier is the interface the pipeline depends on.
type Classifier interface {
	Classify(ctx context.Context, text, lang string) (*Result, error)
}
