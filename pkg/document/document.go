// Package document classifies playbook files handed to the adapter by the
// controller and extracts the payload for the matching execution path.
//
// The controller discovers playbooks as .yml files, so a convention is used:
// a header line such as "hosts: all" satisfies discovery, a line containing
// only "---" separates the header from the markdown desired-state body. Files
// carrying the legacy script entry point are forwarded to the script path
// untouched.
package document

import (
	"errors"
	"strings"
)

// legacyMarker is the entry-point signature of a legacy imperative script.
// Its presence anywhere in the file wins over the separator, even when the
// marker only appears quoted inside markdown. Intentional: changing this
// would change which files get executed as scripts.
const legacyMarker = "async def run("

// separator is the line that ends the discovery header and starts the
// desired-state body.
const separator = "---"

// ErrMalformedDocument indicates a desired-state document without the
// required "---" separator line. The input must be fixed; nothing was run.
var ErrMalformedDocument = errors.New("document: no --- separator before desired state")

// Kind is the classification of an input document, decided exactly once.
type Kind string

const (
	// KindLegacyScript routes the file to the legacy script runner.
	KindLegacyScript Kind = "legacy_script"
	// KindDesiredState routes the file to the reconciliation loop.
	KindDesiredState Kind = "desired_state"
)

// InputDocument is the raw text of one playbook file.
type InputDocument struct {
	Path string
	Text string
}

// DesiredState is the markdown body extracted from a desired-state document.
type DesiredState struct {
	Text string
}

// Classify decides which execution path interprets the document.
func Classify(doc InputDocument) Kind {
	if strings.Contains(doc.Text, legacyMarker) {
		return KindLegacyScript
	}
	return KindDesiredState
}

// ExtractDesiredState returns everything strictly after the first line that
// consists solely of the separator token, byte for byte. It returns
// ErrMalformedDocument when no such line exists or nothing follows it: only
// legacy scripts may have an empty body.
func ExtractDesiredState(doc InputDocument) (DesiredState, error) {
	rest := doc.Text
	for {
		line, after, found := strings.Cut(rest, "\n")
		if line == separator {
			if !found || after == "" {
				return DesiredState{}, ErrMalformedDocument
			}
			return DesiredState{Text: after}, nil
		}
		if !found {
			return DesiredState{}, ErrMalformedDocument
		}
		rest = after
	}
}

// ExtractScript returns the script payload for the legacy path. The whole
// file is forwarded unchanged.
func ExtractScript(doc InputDocument) string {
	return doc.Text
}
