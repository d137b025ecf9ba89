// Package document implements the supporting-document collaborators:
// fetching the authorization document from the portal onto disk and a
// basic structural validation of the result. Content-level PDF analysis
// is supplied by a separate tool; its findings enter the pipeline as
// error codes through the same interface.
package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/healthforce/authflow/workflow"
)

// Validation error codes consumed by the pdf_analysis rule phase.
const (
	CodeDocumentMissing  = "document_missing"
	CodeDocumentEmpty    = "document_empty"
	CodeDocumentNotPDF   = "document_not_pdf"
	CodeFiscalCodeAbsent = "fiscal_code_absent"
)

// Downloader fetches documents through the shared portal session.
type Downloader interface {
	DownloadDocument(ctx context.Context, authorizationID string) ([]byte, error)
}

// Fetcher stores downloaded documents under the run's output directory,
// one file per authorization identifier.
type Fetcher struct {
	downloader Downloader
	outputDir  string
}

var _ workflow.DocumentFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher writing into outputDir.
func NewFetcher(downloader Downloader, outputDir string) *Fetcher {
	return &Fetcher{downloader: downloader, outputDir: outputDir}
}

// FetchDocument downloads the document and writes it to
// <outputDir>/<authorizationID>.pdf.
func (f *Fetcher) FetchDocument(ctx context.Context, authorizationID string) (workflow.DocumentHandle, error) {
	data, err := f.downloader.DownloadDocument(ctx, authorizationID)
	if err != nil {
		return workflow.DocumentHandle{}, err
	}

	path := filepath.Join(f.outputDir, authorizationID+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return workflow.DocumentHandle{}, fmt.Errorf("failed to store document %s: %w", authorizationID, err)
	}

	return workflow.DocumentHandle{AuthorizationID: authorizationID, Path: path}, nil
}

// Validator performs the structural checks that do not require text
// extraction: the file exists, is non-empty, carries a PDF header, and
// embeds the patient's fiscal code. Findings are data for the rules,
// never errors.
type Validator struct{}

var _ workflow.DocumentValidator = Validator{}

// Validate returns the ordered list of error codes found in the
// document.
func (Validator) Validate(ctx context.Context, doc workflow.DocumentHandle, insurerName, fiscalCode string) ([]string, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{CodeDocumentMissing}, nil
		}
		return nil, fmt.Errorf("failed to read document %s: %w", doc.Path, err)
	}

	var codes []string
	if len(data) == 0 {
		return []string{CodeDocumentEmpty}, nil
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		codes = append(codes, CodeDocumentNotPDF)
	}
	if fiscalCode != "" && !bytes.Contains(data, []byte(fiscalCode)) {
		codes = append(codes, CodeFiscalCodeAbsent)
	}

	return codes, nil
}
