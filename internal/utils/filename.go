package utils

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SanitizeFilenamePart transliterates s to ASCII and collapses every run
// of non-alphanumerics into a single underscore.
func SanitizeFilenamePart(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(Fold(s), "_"), "_")
}

// DownloadFilename builds certificado_<Name>_<Org>.pdf. Empty parts are
// left out.
func DownloadFilename(fullName, org string) string {
	parts := []string{"certificado"}
	for _, p := range []string{fullName, org} {
		if s := SanitizeFilenamePart(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "_") + ".pdf"
}
