package pdf

import "context"

// PrintJob is one HTML document to rasterize.
type PrintJob struct {
	HTML           string
	Setup          PageSetup
	HeaderTemplate string
	FooterTemplate string
	// Screenshot also captures the first viewport as PNG.
	Screenshot bool
}

// PrintOutput holds the rasterized document.
type PrintOutput struct {
	PDF        []byte
	Screenshot []byte
}

// Printer rasterizes HTML. Browser is the production implementation.
type Printer interface {
	Print(ctx context.Context, job PrintJob) (PrintOutput, error)
}
