package core

import "context"

type (
	// CertificateData is the information a renderer needs to produce the
	// printable document.
	CertificateData struct {
		CertificateID  string
		StudentName    string
		CourseTitle    string
		InstructorName string
		Template       string
		DesignOptions  map[string]interface{}
	}

	// CertificateRenderer renders a certificate document and returns a durable
	// URL to the artifact. Implementations are expected to be synchronous;
	// callers impose timeouts via ctx.
	CertificateRenderer interface {
		Render(ctx context.Context, data CertificateData) (url string, err error)
	}
)
