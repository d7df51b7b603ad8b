package errors

// Search/index/fusion error codes (600-699), naming the exact kinds
// required by the retrieval engine's contracts.
const (
	ErrCodeInvalidConfig          = "ERR_601_INVALID_CONFIG"
	ErrCodeEmptyQuery             = "ERR_602_EMPTY_QUERY"
	ErrCodeEmptyDocument          = "ERR_603_EMPTY_DOCUMENT"
	ErrCodeUnknownDocument        = "ERR_604_UNKNOWN_DOCUMENT"
	ErrCodeInvalidDocID           = "ERR_605_INVALID_DOC_ID"
	ErrCodeMissingSimilarityScore = "ERR_606_MISSING_SIMILARITY_SCORE"
	ErrCodeCorruptedData          = "ERR_607_CORRUPTED_DATA"
	ErrCodeBackendUnavailable     = "ERR_608_BACKEND_UNAVAILABLE"
	ErrCodeBackendFailed          = "ERR_609_BACKEND_FAILED"
	ErrCodeSearchTimeout          = "ERR_610_TIMEOUT"
	ErrCodeUnsupportedLanguage    = "ERR_611_UNSUPPORTED_LANGUAGE"
	ErrCodeParseError             = "ERR_612_PARSE_ERROR"
)

func init() {
	// Extend the category/severity derivation tables for the 6xx range.
	categoryOverrides[ErrCodeInvalidConfig] = CategoryConfig
	categoryOverrides[ErrCodeEmptyQuery] = CategoryValidation
	categoryOverrides[ErrCodeEmptyDocument] = CategoryValidation
	categoryOverrides[ErrCodeUnknownDocument] = CategoryValidation
	categoryOverrides[ErrCodeInvalidDocID] = CategoryValidation
	categoryOverrides[ErrCodeMissingSimilarityScore] = CategoryValidation
	categoryOverrides[ErrCodeCorruptedData] = CategoryIO
	categoryOverrides[ErrCodeBackendUnavailable] = CategoryNetwork
	categoryOverrides[ErrCodeBackendFailed] = CategoryNetwork
	categoryOverrides[ErrCodeSearchTimeout] = CategoryNetwork
	categoryOverrides[ErrCodeUnsupportedLanguage] = CategoryValidation
	categoryOverrides[ErrCodeParseError] = CategoryIO

	severityOverrides[ErrCodeInvalidConfig] = SeverityFatal
	severityOverrides[ErrCodeCorruptedData] = SeverityFatal
	severityOverrides[ErrCodeBackendFailed] = SeverityWarning
	severityOverrides[ErrCodeSearchTimeout] = SeverityWarning

	retryableOverrides[ErrCodeBackendFailed] = true
	retryableOverrides[ErrCodeSearchTimeout] = true
	retryableOverrides[ErrCodeBackendUnavailable] = true
}

var (
	categoryOverrides  = map[string]Category{}
	severityOverrides  = map[string]Severity{}
	retryableOverrides = map[string]bool{}
)

// EmptyQuery constructs the error raised when a search or BM25 query
// string is empty or whitespace-only.
func EmptyQuery() *AmanError {
	return New(ErrCodeEmptyQuery, "query must not be empty", nil)
}

// EmptyDocument constructs the error raised when add_document is
// called with a document that tokenized to zero tokens.
func EmptyDocument(docID string) *AmanError {
	return New(ErrCodeEmptyDocument, "document has no tokens", nil).WithDetail("doc_id", docID)
}

// UnknownDocument constructs the error raised when remove_document
// names a doc_id that isn't in the index.
func UnknownDocument(docID string) *AmanError {
	return New(ErrCodeUnknownDocument, "document not found", nil).WithDetail("doc_id", docID)
}

// InvalidDocID constructs the error raised when a BM25 doc_id fails to
// parse as "file_path#chunk_index".
func InvalidDocID(docID string) *AmanError {
	return New(ErrCodeInvalidDocID, "doc_id is not of the form file_path#chunk_index", nil).WithDetail("doc_id", docID)
}

// MissingSimilarityScore constructs the error raised when a semantic
// record is missing its similarity score.
func MissingSimilarityScore(filePath string, chunkIndex int) *AmanError {
	e := New(ErrCodeMissingSimilarityScore, "vector result missing similarity score", nil)
	e.WithDetail("file_path", filePath)
	return e
}

// CorruptedData constructs the error raised when a fusion input score
// is NaN or infinite.
func CorruptedData(reason string) *AmanError {
	return New(ErrCodeCorruptedData, reason, nil)
}

// BackendUnavailable constructs the error raised when a backend could
// not be constructed at all.
func BackendUnavailable(name string) *AmanError {
	return New(ErrCodeBackendUnavailable, "backend unavailable", nil).WithDetail("backend", name)
}

// BackendFailed constructs the error raised when a specific backend
// query failed.
func BackendFailed(name string, cause error) *AmanError {
	return New(ErrCodeBackendFailed, "backend query failed", cause).WithDetail("backend", name)
}

// SearchTimeout constructs the error raised by the Orchestrator after
// search_timeout elapses.
func SearchTimeout() *AmanError {
	return New(ErrCodeSearchTimeout, "search timed out", nil)
}

// UnsupportedLanguage constructs the error raised when SymbolExtractor
// is asked to parse an unrecognized language tag.
func UnsupportedLanguage(language string) *AmanError {
	return New(ErrCodeUnsupportedLanguage, "unsupported language", nil).WithDetail("language", language)
}

// InvalidConfig constructs the error raised for unrecoverable
// configuration problems at startup.
func InvalidConfig(reason string) *AmanError {
	return New(ErrCodeInvalidConfig, reason, nil)
}
