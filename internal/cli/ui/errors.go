package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
)

// WriteErrors renders the errors of a JSON:API document
//
// Example output:
//
//	✗ 404 Not Found
//	   users "7" does not exist
//	   (parameter: id)
func WriteErrors(w io.Writer, errs []*jsonapi.Error) {
	header := color.New(color.FgRed, color.Bold)
	body := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	for _, e := range errs {
		header.Fprintf(w, "✗ %s %s\n", e.Status, e.Title)
		if e.Detail != "" {
			body.Fprintf(w, "   %s\n", e.Detail)
		}
		if e.Source != nil {
			switch {
			case e.Source.Pointer != "":
				gray.Fprintf(w, "   (pointer: %s)\n", e.Source.Pointer)
			case e.Source.Parameter != "":
				gray.Fprintf(w, "   (parameter: %s)\n", e.Source.Parameter)
			}
		}
		if e.ID != "" {
			gray.Fprintf(w, "   id: %s\n", e.ID)
		}
	}
}

// WriteSuccess writes a success message
func WriteSuccess(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}
