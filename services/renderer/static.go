// Package rendersvc produces the downloadable certificate artifact.
//
// The static implementation does not draw anything: it derives the stable CDN
// URL the rendering pipeline will publish to. This is enough for the engine,
// whose guarantees never depend on the artifact itself.
package rendersvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/elimuhq/darasa/core"
)

const defaultCDNBase = "https://res.cloudinary.com/darasa/image/upload"

type staticRenderer struct {
	cdnBase string
}

var _ core.CertificateRenderer = (*staticRenderer)(nil)

func NewStaticRenderer(cdnBase string) core.CertificateRenderer {
	if cdnBase == "" {
		cdnBase = defaultCDNBase
	}
	return &staticRenderer{cdnBase: strings.TrimRight(cdnBase, "/")}
}

func (r staticRenderer) Render(ctx context.Context, data core.CertificateData) (string, error) {
	template := data.Template
	if template == "" {
		template = "default"
	}
	return fmt.Sprintf("%s/certificates/%s/%s.pdf", r.cdnBase, template, data.CertificateID), nil
}
