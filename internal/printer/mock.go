package printer

import (
	"context"
	"log"
	"os"
)

// MockProvider logs tickets instead of printing them. When OutputPath is
// set (non-production use) the ticket text is also written to that file so
// a developer can inspect the exact bytes a printer would receive.
type MockProvider struct {
	OutputPath string
}

func NewMockProvider(outputPath string) *MockProvider {
	return &MockProvider{OutputPath: outputPath}
}

func (p *MockProvider) Send(_ context.Context, ticketText string, meta Meta) Result {
	log.Printf("[printer] mock send org=%s order=%s target=%s bytes=%d",
		meta.OrganizationID, meta.OrderID, meta.PrinterTarget, len(ticketText))

	if p.OutputPath != "" {
		if err := os.WriteFile(p.OutputPath, []byte(ticketText+"\n"), 0644); err != nil {
			log.Printf("[printer] mock write %s: %v", p.OutputPath, err)
		}
	}

	return Result{OK: true, JobID: "mock-" + meta.OrderID}
}
