package renderer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jffcastro/assetflow"
)

// RenderWarnings renders warnings grouped by kind. It returns an empty
// string when there are none.
func RenderWarnings(warnings []error) string {
	var b strings.Builder
	ConditionalBlock(&b, func(w io.Writer) bool {
		fmt.Fprintf(w, "## Warnings\n\n")
		n := 0
		n += section(w, "Over-sold assets", assetflow.FilterWarnings[*assetflow.DataIntegrityWarning](warnings))
		n += section(w, "Approximate conversions", assetflow.FilterWarnings[*assetflow.MissingRateWarning](warnings))
		n += section(w, "Malformed transactions", assetflow.FilterWarnings[*assetflow.MalformedTransaction](warnings))
		n += section(w, "Failed assets", assetflow.FilterWarnings[*assetflow.PartitionError](warnings))

		var other []error
		for _, err := range warnings {
			if !isKnown(err) {
				other = append(other, err)
			}
		}
		n += section(w, "Other", other)
		return n > 0
	})
	return b.String()
}

func isKnown(err error) bool {
	var (
		d *assetflow.DataIntegrityWarning
		r *assetflow.MissingRateWarning
		m *assetflow.MalformedTransaction
		p *assetflow.PartitionError
	)
	return errors.As(err, &d) || errors.As(err, &r) || errors.As(err, &m) || errors.As(err, &p)
}

func section[T error](w io.Writer, title string, errs []T) int {
	if len(errs) == 0 {
		return 0
	}
	fmt.Fprintf(w, "### %s\n\n", title)
	for _, err := range errs {
		fmt.Fprintf(w, "- %s\n", err.Error())
	}
	fmt.Fprintln(w)
	return len(errs)
}
