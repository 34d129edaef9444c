package domain

// DetectionItem represents a single shelf item detected and cropped upstream.
// Attributes are extracted from the crop before it enters the matching
// pipeline; the struct is immutable once admitted.
type DetectionItem struct {
	ID              string  `json:"id"`
	Brand           string  `json:"brand,omitempty"`
	ProductName     string  `json:"productName,omitempty"`
	Size            string  `json:"size,omitempty"`
	SizeConfidence  float64 `json:"sizeConfidence,omitempty"`
	RetailerContext string  `json:"retailerContext,omitempty"` // e.g., "walmart"
	ReferenceImage  string  `json:"referenceImage"`            // URL or object storage key
}

// Validate checks that the item carries the minimum attributes required to
// run the pipeline at all.
func (d DetectionItem) Validate() error {
	if d.ID == "" {
		return ErrInvalidItem
	}
	if d.ReferenceImage == "" {
		return ErrInvalidItem
	}
	return nil
}
