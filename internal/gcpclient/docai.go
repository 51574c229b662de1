package gcpclient

import (
	"context"
	"fmt"
	"log/slog"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DocumentAIAdapter implements extractor.PDFBackend using the Document AI
// API's inline-document path: PDF bytes travel in the request, never
// touching GCS, so C1 stays a pure bytes-in/text-out boundary.
type DocumentAIAdapter struct {
	client    *documentai.DocumentProcessorClient
	project   string
	location  string
	processor string // projects/{p}/locations/{l}/processors/{id}
}

// NewDocumentAIAdapter creates a new Document AI client.
// location is typically "us" or "eu" for Document AI (multi-region).
func NewDocumentAIAdapter(ctx context.Context, project, location, processor string) (*DocumentAIAdapter, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewDocumentAIAdapter: %w", err)
	}

	return &DocumentAIAdapter{
		client:    client,
		project:   project,
		location:  location,
		processor: processor,
	}, nil
}

// ExtractText sends raw PDF bytes to Document AI inline and returns the
// extracted text. Satisfies extractor.PDFBackend.
func (a *DocumentAIAdapter) ExtractText(ctx context.Context, data []byte) (string, error) {
	req := &documentaipb.ProcessRequest{
		Name: a.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	}

	resp, err := a.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("gcpclient.ExtractText: %w", err)
	}
	if resp.Document == nil {
		return "", fmt.Errorf("gcpclient.ExtractText: nil document in response")
	}

	slog.Debug("document ai extracted text", "pages", len(resp.Document.Pages), "chars", len(resp.Document.Text))
	return resp.Document.Text, nil
}

// HealthCheck verifies the Document AI connection by listing processors.
func (a *DocumentAIAdapter) HealthCheck(ctx context.Context) error {
	parent := fmt.Sprintf("projects/%s/locations/%s", a.project, a.location)
	req := &documentaipb.ListProcessorsRequest{
		Parent: parent,
	}

	iter := a.client.ListProcessors(ctx, req)
	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return fmt.Errorf("gcpclient.DocumentAI.HealthCheck: %w", err)
	}

	slog.Debug("document ai health check passed", "project", a.project, "location", a.location)
	return nil
}

// Close releases the underlying gRPC connection.
func (a *DocumentAIAdapter) Close() {
	a.client.Close()
}
