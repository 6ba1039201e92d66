package internal

// StyleCandidate is one code-like text fragment detected on a document.
// Never mutated after extraction.
type StyleCandidate struct {
	Text     string `json:"text"`
	IsRed    bool   `json:"is_red"`
	Position string `json:"position"`
}

// LineItem is referenced by position from match decisions, never by
// identity. Index stability within one document is an invariant.
type LineItem struct {
	Qty          float64 `json:"qty"`
	Price        float64 `json:"price"`
	Unit         string  `json:"unit"`
	RawStyleText string  `json:"raw_style_text"`
	Description  string  `json:"description,omitempty"`
}

type ExtractedDocument struct {
	DeliveryDate        string           `json:"delivery_date"`
	BuyerName           string           `json:"buyer_name"`
	SupplierName        string           `json:"supplier_name"`
	DeliveryOrderNumber string           `json:"delivery_order_number,omitempty"`
	StyleCandidates     []StyleCandidate `json:"style_candidates"`
	Items               []LineItem       `json:"items"`
	FinalStyle          string           `json:"final_selected_style,omitempty"`
}

// SystemRecord is a purchase-requirement row as the ERP returns it.
// CreateTime may carry an embedded /Date(ms)/ timestamp.
type SystemRecord struct {
	ID                string  `json:"Id"`
	SupplierName      string  `json:"DBSupplierSpName"`
	SupplierShortName string  `json:"DBSupplierSpShortName"`
	MaterialName      string  `json:"MaterialMtName"`
	MaterialSpec      string  `json:"MaterialSpec"`
	TotalAmount       float64 `json:"TotalAmount"`
	CreateTime        string  `json:"OrderReqCheckDate"`
}

// RecordView is the reduced projection of a SystemRecord sent to the
// matching step.
type RecordView struct {
	ID                 string  `json:"Id"`
	SupplierName       string  `json:"DBSupplierSpName"`
	SupplierShortName  string  `json:"DBSupplierSpShortName"`
	CreateTimeReadable string  `json:"CreateTime_Readable"`
	TotalAmount        float64 `json:"TotalAmount"`
	MaterialName       string  `json:"MaterialMtName"`
	MaterialSpec       string  `json:"MaterialSpec"`
}

type DecisionStatus string

const (
	DecisionSuccess DecisionStatus = "success"
	DecisionFail    DecisionStatus = "fail"
)

type DirectMatch struct {
	RecordID string `json:"record_id"`
	OCRIndex int    `json:"ocr_index"`
}

type MergeMatch struct {
	RecordID   string `json:"record_id"`
	OCRIndices []int  `json:"ocr_indices"`
}

// MatchDecision is transient: it exists only to be translated into
// ExecutionTasks.
type MatchDecision struct {
	Status DecisionStatus `json:"status"`
	Direct []DirectMatch  `json:"direct_matches"`
	Merge  []MergeMatch   `json:"merge_matches"`
	Split  []DirectMatch  `json:"split_matches"`
	Reason string         `json:"reason"`
}

type MatchType string

const (
	MatchDirect MatchType = "DIRECT"
	MatchMerge  MatchType = "MERGE"
	MatchSplit  MatchType = "SPLIT"
)

type ExecutionTask struct {
	MatchType MatchType
	Record    SystemRecord
	Items     []LineItem
	Context   *ExtractedDocument
}

type DocumentStatus string

const (
	StatusSuccess            DocumentStatus = "success"
	StatusSkipped            DocumentStatus = "skipped"
	StatusExtractionFailed   DocumentStatus = "extraction_failed"
	StatusStyleUnresolved    DocumentStatus = "style_unresolved"
	StatusSupplierUnresolved DocumentStatus = "supplier_unresolved"
	StatusReconcileFailed    DocumentStatus = "reconciliation_failed"
	StatusExecutionFailed    DocumentStatus = "execution_failed"
)

// DocumentOutcome is the terminal per-document report row. The final
// report carries exactly one per input document.
type DocumentOutcome struct {
	Source       string
	Status       DocumentStatus
	Reason       string
	Style        string
	Supplier     string
	Agent        string
	DeliveryDate string
	TaskCount    int
	RetryCount   int
}

type DocumentRow struct {
	ID           int
	Stem         string
	SourcePath   string
	Status       string
	Reason       string
	Style        string
	Supplier     string
	Agent        string
	DeliveryDate string
	DocJSON      string
	TaskCount    int
	RetryCount   int
	UpdatedAt    string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
