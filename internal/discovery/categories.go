package discovery

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Category names.
const (
	TextDocuments = "text_documents"
	Spreadsheets  = "spreadsheets"
	Presentations = "presentations"
	Images        = "images"
	Audio         = "audio"
	Video         = "video"
)

// Categories maps each category to its lowercase extensions, without the dot.
var Categories = map[string][]string{
	TextDocuments: {"pdf", "docx", "txt", "md", "html", "rtf", "odt"},
	Spreadsheets:  {"xlsx", "csv", "ods", "tsv"},
	Presentations: {"pptx", "odp"},
	Images:        {"png", "jpg", "jpeg", "tiff", "bmp"},
	Audio:         {"mp3", "wav", "ogg", "flac", "m4a"},
	Video:         {"mp4", "avi", "mov", "mkv", "webm"},
}

// DefaultCategories are enabled when none are configured.
var DefaultCategories = []string{TextDocuments, Spreadsheets, Presentations}

// CategoryNames returns every known category, sorted.
func CategoryNames() []string {
	names := make([]string, 0, len(Categories))
	for name := range Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveCategories drops unknown names with a warning. If nothing valid
// remains the defaults are returned.
func ResolveCategories(names []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		if _, ok := Categories[n]; !ok {
			log.Warn().Str("category", n).Strs("valid", CategoryNames()).Msg("ignoring unknown file category")
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultCategories...)
	}
	return out
}

// EnabledExtensions returns the extension set for the given categories.
func EnabledExtensions(categories []string) map[string]bool {
	exts := make(map[string]bool)
	for _, c := range categories {
		for _, e := range Categories[c] {
			exts[e] = true
		}
	}
	return exts
}

// CategoryForExtension returns the category owning ext, or "" if none does.
func CategoryForExtension(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, name := range CategoryNames() {
		for _, e := range Categories[name] {
			if e == ext {
				return name
			}
		}
	}
	return ""
}
