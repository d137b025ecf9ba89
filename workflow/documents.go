package workflow

import "context"

// DocumentHandle identifies a fetched supporting document. The fetcher
// decides what Path means (usually a file under the run's output
// directory, named after the authorization identifier).
type DocumentHandle struct {
	AuthorizationID string
	Path            string
}

// DocumentFetcher retrieves the supporting document issued for an
// authorization.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, authorizationID string) (DocumentHandle, error)
}

// DocumentValidator inspects a fetched document and returns the ordered
// list of validation error codes found in it. An empty list means the
// document is clean; the list is data for the pdf_analysis rule phase,
// never an error.
type DocumentValidator interface {
	Validate(ctx context.Context, doc DocumentHandle, insurerName, fiscalCode string) ([]string, error)
}
