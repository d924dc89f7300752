package classify

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestClassify(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Classify Suite")
}

var allowedTypes = []string{"event", "contact", "expense", "address", "note", "document"}

var _ = Describe("ExtractJSONObject", func() {
	It("passes a bare object through", func() {
		out, err := ExtractJSONObject(`{"type":"note"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"type":"note"}`))
	})

	It("strips markdown fences", func() {
		out, err := ExtractJSONObject("```json\n{\"type\":\"note\"}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"type":"note"}`))
	})

	It("discards prose around the object", func() {
		out, err := ExtractJSONObject(`Sure! Here is the result: {"type":"event"} Hope that helps.`)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"type":"event"}`))
	})

	It("errors when no object is present", func() {
		_, err := ExtractJSONObject("I could not read the image.")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Schema validation", func() {
	schema := BuildClassificationJSONSchema(allowedTypes)

	It("accepts a well-formed event", func() {
		doc := []byte(`{
			"type": "event",
			"title": "Team Offsite",
			"summary": "Offsite on Jan 10",
			"event": {"date": "2025-01-10", "location": "Cairo"},
			"fields": {"organizer": "Sara"}
		}`)
		Expect(ValidateJSONAgainstSchema(schema, doc)).To(Succeed())
	})

	It("rejects an unknown type", func() {
		doc := []byte(`{"type": "recipe", "title": "x"}`)
		Expect(ValidateJSONAgainstSchema(schema, doc)).NotTo(Succeed())
	})

	It("rejects a missing type", func() {
		doc := []byte(`{"title": "x"}`)
		Expect(ValidateJSONAgainstSchema(schema, doc)).NotTo(Succeed())
	})

	It("rejects non-string bag values", func() {
		doc := []byte(`{"type": "expense", "title": "x", "fields": {"amount": 42}}`)
		Expect(ValidateJSONAgainstSchema(schema, doc)).NotTo(Succeed())
	})
})

var _ = Describe("SanitizeResult", func() {
	It("lowercases the type and coerces bag values", func() {
		raw := []byte(`{"type":" Expense ","title":"Lunch","fields":{"amount":42.5,"paid":true,"note":null}}`)
		cleaned, touched, err := SanitizeResult(raw)
		Expect(err).NotTo(HaveOccurred())

		var m map[string]any
		Expect(json.Unmarshal(cleaned, &m)).To(Succeed())
		Expect(m["type"]).To(Equal("expense"))

		bag := m["fields"].(map[string]any)
		Expect(bag["amount"]).To(Equal("42.5"))
		Expect(bag["paid"]).To(Equal("true"))
		Expect(bag).NotTo(HaveKey("note"))
		Expect(touched).NotTo(BeEmpty())
	})

	It("drops empty titles and unknown top-level keys", func() {
		raw := []byte(`{"type":"note","title":"  ","confidence":0.9,"note":{"text":"hi"}}`)
		cleaned, _, err := SanitizeResult(raw)
		Expect(err).NotTo(HaveOccurred())

		var m map[string]any
		Expect(json.Unmarshal(cleaned, &m)).To(Succeed())
		Expect(m).NotTo(HaveKey("title"))
		Expect(m).NotTo(HaveKey("confidence"))
		Expect(m).To(HaveKey("note"))
	})

	It("makes a sloppy payload validate", func() {
		schema := BuildClassificationJSONSchema(allowedTypes)
		raw := []byte(`{"type":"Expense","title":"Lunch","confidence":1,"fields":{"amount":42}}`)
		Expect(ValidateJSONAgainstSchema(schema, raw)).NotTo(Succeed())

		cleaned, _, err := SanitizeResult(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(ValidateJSONAgainstSchema(schema, cleaned)).To(Succeed())
	})
})

var _ = Describe("BestTitle", func() {
	It("prefers the top-level title", func() {
		r := &Result{Title: "Top", Event: &EventDetails{Title: "Sub"}}
		Expect(r.BestTitle()).To(Equal("Top"))
	})

	It("falls back to the populated sub-object", func() {
		r := &Result{Expense: &ExpenseDetails{Title: "Pharmacy"}}
		Expect(r.BestTitle()).To(Equal("Pharmacy"))
	})

	It("returns empty when nothing carries a title", func() {
		Expect((&Result{}).BestTitle()).To(BeEmpty())
	})
})
