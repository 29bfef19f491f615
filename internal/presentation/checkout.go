package presentation

import (
	"embed"
	"html/template"
	"io"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

//go:embed templates/checkout.html
var templatesFS embed.FS

var checkoutTmpl = template.Must(template.ParseFS(templatesFS, "templates/checkout.html"))

type checkoutPage struct {
	ReferenceCode string
	Method        string
	EndpointURL   string
	Fields        map[string]string
}

// renderCheckout writes a page that posts the redirect form on load.
func renderCheckout(w io.Writer, ref string, rd domain.Redirect) error {
	return checkoutTmpl.Execute(w, checkoutPage{
		ReferenceCode: ref,
		Method:        rd.Method,
		EndpointURL:   rd.EndpointURL,
		Fields:        rd.FormFields,
	})
}
