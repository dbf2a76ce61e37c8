package model

// OCRSource identifies which engine's text was kept for a page.
type OCRSource string

const (
	OCRSourcePaddle OCRSource = "paddle"
	OCRSourceAzure  OCRSource = "azure"
)

// SourceType classifies an uploaded document for extraction.
type SourceType string

const (
	SourceTypeImage SourceType = "image"
	SourceTypePDF   SourceType = "pdf"
)

// TextBlock is a single recognized line with its confidence and the
// quadrilateral region on the page. BBox holds four [x, y] corner points;
// zeros when the engine did not report a region.
type TextBlock struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	BBox       [][]float64 `json:"bbox"`
}

// PageOCR is the OCR output for one page after engine selection and block
// filtering. Confidence is the mean block confidence. Warnings records
// discarded blocks and the dual-layer selection decision for the page.
type PageOCR struct {
	PageNumber int         `json:"page_number"`
	Text       string      `json:"text"`
	Blocks     []TextBlock `json:"blocks"`
	Confidence float64     `json:"confidence"`
	Source     OCRSource   `json:"source"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// DocumentOCR is the page-by-page OCR output for a whole uploaded file.
type DocumentOCR struct {
	Pages      []PageOCR  `json:"pages"`
	TotalPages int        `json:"total_pages"`
	SourceType SourceType `json:"source_type"`
}

// Text returns the concatenated text of all pages. Used to decide whether
// a document yielded anything worth analyzing.
func (d DocumentOCR) Text() string {
	var out string
	for _, p := range d.Pages {
		out += p.Text
	}
	return out
}
