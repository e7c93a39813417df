package parsing

// Fragment is one span of text recognized by an OCR engine
type Fragment struct {
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	BoundingBox []float64 `json:"bbox"` // 4 corner points, x1,y1 ... x4,y4
}

// LineItem is a purchased product found on a receipt
type LineItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ParsedReceipt contains the fields extracted from a receipt's recognized text.
// Optional fields are nil when nothing plausible was found.
type ParsedReceipt struct {
	StoreName       *string    `json:"store_name"`
	TransactionDate *string    `json:"transaction_date"`
	TransactionTime *string    `json:"transaction_time"`
	TotalAmount     *float64   `json:"total_amount"`
	Items           []LineItem `json:"items"`
	RawLines        []string   `json:"raw_lines"`
	Confidence      float64    `json:"confidence"`
}

// Columns lists the field names of a ParsedReceipt projection, in output order
var Columns = []string{
	"store_name",
	"transaction_date",
	"transaction_time",
	"total_amount",
	"items",
	"raw_lines",
	"confidence",
}

// Fields projects the receipt into a map keyed by Columns.
// Absent optional fields are present with a nil value.
func (r ParsedReceipt) Fields() map[string]any {
	fields := map[string]any{
		"store_name":       nil,
		"transaction_date": nil,
		"transaction_time": nil,
		"total_amount":     nil,
		"items":            r.Items,
		"raw_lines":        r.RawLines,
		"confidence":       r.Confidence,
	}
	if r.StoreName != nil {
		fields["store_name"] = *r.StoreName
	}
	if r.TransactionDate != nil {
		fields["transaction_date"] = *r.TransactionDate
	}
	if r.TransactionTime != nil {
		fields["transaction_time"] = *r.TransactionTime
	}
	if r.TotalAmount != nil {
		fields["total_amount"] = *r.TotalAmount
	}
	if r.Items == nil {
		fields["items"] = []LineItem{}
	}
	if r.RawLines == nil {
		fields["raw_lines"] = []string{}
	}
	return fields
}
