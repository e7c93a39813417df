package receipt

import (
	"slices"
	"time"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

// Receipt is a processed receipt upload
type Receipt struct {
	ID          string                `json:"id"`
	Filename    string                `json:"filename"`
	ContentType string                `json:"content_type"`
	Engine      string                `json:"engine"` // name of the OCR engine that read the image
	Data        parsing.ParsedReceipt `json:"data"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Columns lists the field names of a Receipt projection in output order:
// the parsed fields followed by the record fields
var Columns = slices.Concat(parsing.Columns, []string{"id", "created_at", "source"})

// Fields projects the receipt for column filtering: the parsed fields at the
// top level plus a nested "source" map describing where they came from.
func (r *Receipt) Fields() map[string]any {
	fields := r.Data.Fields()
	fields["id"] = r.ID
	fields["created_at"] = r.CreatedAt
	fields["source"] = map[string]any{
		"engine":       r.Engine,
		"filename":     r.Filename,
		"content_type": r.ContentType,
	}
	return fields
}
