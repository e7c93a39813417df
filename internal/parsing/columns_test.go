package parsing

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FilterColumns", func() {
	var (
		data     map[string]any
		columns  []string
		filtered map[string]any
	)

	BeforeEach(func() {
		data = map[string]any{
			"store_name": "X",
			"meta":       map[string]any{"confidence": 0.9, "engine": "baiduocr"},
		}
	})

	JustBeforeEach(func() {
		filtered = FilterColumns(data, columns)
	})

	When("no columns are requested", func() {
		BeforeEach(func() {
			columns = nil
		})

		It("should return the data unchanged", func() {
			Expect(filtered).To(Equal(data))
		})
	})

	When("a column lives one level down", func() {
		BeforeEach(func() {
			columns = []string{"store_name", "confidence"}
		})

		It("should find it through the nested search", func() {
			Expect(filtered).To(Equal(map[string]any{"store_name": "X", "confidence": 0.9}))
		})
	})

	When("a column exists both at the top level and nested", func() {
		BeforeEach(func() {
			data["confidence"] = 0.5
			columns = []string{"confidence"}
		})

		It("should prefer the top-level value", func() {
			Expect(filtered).To(Equal(map[string]any{"confidence": 0.5}))
		})
	})

	When("several nested maps hold the column", func() {
		BeforeEach(func() {
			data["aaa"] = map[string]any{"engine": "first"}
			columns = []string{"engine"}
		})

		It("should take the first nested map in key order", func() {
			Expect(filtered).To(HaveKeyWithValue("engine", "first"))
		})
	})

	When("a column does not exist anywhere", func() {
		BeforeEach(func() {
			columns = []string{"store_name", "cashier"}
		})

		It("should silently omit it", func() {
			Expect(filtered).To(Equal(map[string]any{"store_name": "X"}))
		})
	})
})

var _ = Describe("ParsedReceipt.Fields", func() {
	It("should expose every column with nil for absent values", func() {
		fields := NewParser().Parse(fragmentsOf("03/15/2024"))
		projection := fields.Fields()

		Expect(projection).To(HaveLen(len(Columns)))
		for _, col := range Columns {
			Expect(projection).To(HaveKey(col))
		}
		Expect(projection["transaction_date"]).To(Equal("03/15/2024"))
		Expect(projection["transaction_time"]).To(BeNil())
		Expect(projection["total_amount"]).To(BeNil())
	})

	It("should never expose nil slices", func() {
		projection := ParsedReceipt{}.Fields()
		Expect(projection["items"]).To(Equal([]LineItem{}))
		Expect(projection["raw_lines"]).To(Equal([]string{}))
	})
})

var _ = Describe("DecodeFragments", func() {
	var (
		input     string
		fragments []Fragment
		err       error
	)

	JustBeforeEach(func() {
		fragments, err = DecodeFragments(strings.NewReader(input))
	})

	When("the input is a list of fragments", func() {
		BeforeEach(func() {
			input = `[{"text": "苹果 3.50", "confidence": 0.98, "bbox": [1,2,3,4,5,6,7,8]}, {"text": " "}]`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should decode every fragment", func() {
			Expect(fragments).To(Equal([]Fragment{
				{Text: "苹果 3.50", Confidence: 0.98, BoundingBox: []float64{1, 2, 3, 4, 5, 6, 7, 8}},
				{Text: " "},
			}))
		})
	})

	When("the input is an empty list", func() {
		BeforeEach(func() {
			input = `[]`
		})

		It("should return no fragments", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(BeEmpty())
		})
	})

	When("the input is not a list", func() {
		BeforeEach(func() {
			input = `{"text": "苹果 3.50"}`
		})

		It("returns ErrMalformedFragments", func() {
			Expect(err).To(MatchError(ErrMalformedFragments))
		})
	})

	When("the input is null", func() {
		BeforeEach(func() {
			input = `null`
		})

		It("returns ErrMalformedFragments", func() {
			Expect(err).To(MatchError(ErrMalformedFragments))
		})
	})

	When("an element has no text", func() {
		BeforeEach(func() {
			input = `[{"text": "ok"}, {"confidence": 0.5}]`
		})

		It("returns ErrMalformedFragments", func() {
			Expect(err).To(MatchError(ErrMalformedFragments))
		})
	})

	When("an element is not an object", func() {
		BeforeEach(func() {
			input = `["苹果 3.50"]`
		})

		It("returns ErrMalformedFragments", func() {
			Expect(err).To(MatchError(ErrMalformedFragments))
		})
	})
})
