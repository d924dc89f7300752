// Package fields flattens a classification result into the editable field
// record the client displays. Projection is a pure function of the result;
// absent data maps to nil.
package fields

import (
	"strings"

	"github.com/moatazm17/PicDo-sub000/constants"
	"github.com/moatazm17/PicDo-sub000/internal/classify"
)

// Project returns the flat field record for the result's type. The typed
// detail sub-object wins over the generic bag when both carry a value; keys
// with no value anywhere are present with a nil entry. Every projection
// includes "title".
func Project(res *classify.Result) map[string]*string {
	if res == nil {
		return map[string]*string{"title": nil}
	}

	itemType, _ := constants.Canonicalize(res.Type)
	out := map[string]*string{}

	title := res.BestTitle()
	out["title"] = pick(title, "title", res.Fields)

	switch itemType {
	case constants.Event:
		var d classify.EventDetails
		if res.Event != nil {
			d = *res.Event
		}
		out["date"] = pick(d.Date, "date", res.Fields)
		out["time"] = pick(d.Time, "time", res.Fields)
		out["location"] = pick(d.Location, "location", res.Fields)

	case constants.Contact:
		var d classify.ContactDetails
		if res.Contact != nil {
			d = *res.Contact
		}
		out["name"] = pick(d.Name, "name", res.Fields)
		out["phone"] = pick(d.Phone, "phone", res.Fields)
		out["email"] = pick(d.Email, "email", res.Fields)

	case constants.Expense:
		var d classify.ExpenseDetails
		if res.Expense != nil {
			d = *res.Expense
		}
		out["merchant"] = pick(d.Merchant, "merchant", res.Fields)
		out["amount"] = pick(d.Amount, "amount", res.Fields)
		out["currency"] = pick(d.Currency, "currency", res.Fields)
		out["date"] = pick(d.Date, "date", res.Fields)

	case constants.Address:
		var d classify.AddressDetails
		if res.Address != nil {
			d = *res.Address
		}
		out["address"] = pick(d.Address, "address", res.Fields)
		out["city"] = pick(d.City, "city", res.Fields)
		out["country"] = pick(d.Country, "country", res.Fields)

	case constants.Note:
		var d classify.NoteDetails
		if res.Note != nil {
			d = *res.Note
		}
		out["text"] = pick(d.Text, "text", res.Fields)

	case constants.Document:
		var d classify.DocumentDetails
		if res.Document != nil {
			d = *res.Document
		}
		out["subject"] = pick(d.Subject, "subject", res.Fields)
		out["date"] = pick(d.Date, "date", res.Fields)
	}

	return out
}

// Summary returns the provider summary when present, otherwise a
// deterministic label composed from the type and key projected fields.
func Summary(res *classify.Result, projected map[string]*string) string {
	if res != nil && strings.TrimSpace(res.Summary) != "" {
		return strings.TrimSpace(res.Summary)
	}

	itemType := constants.Note
	if res != nil {
		itemType, _ = constants.Canonicalize(res.Type)
	}

	parts := []string{capitalize(string(itemType))}
	if t := deref(projected["title"]); t != "" {
		parts = append(parts, t)
	}
	switch itemType {
	case constants.Event, constants.Expense, constants.Document:
		if d := deref(projected["date"]); d != "" {
			parts = append(parts, d)
		}
	case constants.Contact:
		if n := deref(projected["name"]); n != "" && n != deref(projected["title"]) {
			parts = append(parts, n)
		}
	case constants.Address:
		if c := deref(projected["city"]); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ": ")
}

func pick(detail, bagKey string, bag map[string]string) *string {
	if s := strings.TrimSpace(detail); s != "" {
		return &s
	}
	if s := strings.TrimSpace(bag[bagKey]); s != "" {
		return &s
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
