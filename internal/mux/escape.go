package mux

import "strings"

var (
	// Characters special inside a filter option value.
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	// Characters special to the filtergraph parser.
	graphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeFilterPath escapes a file path for use as a filter option value inside
// an ffmpeg -vf filtergraph. Both escaping levels are applied: option values
// (backslash, quote, colon, which covers Windows drive letters) and then the
// filtergraph itself (backslash, quote, brackets, comma, semicolon). Spaces
// need no escaping because arguments are passed without a shell.
func EscapeFilterPath(path string) string {
	return escapeFilterValue(path)
}

func escapeFilterValue(value string) string {
	return graphEscaper.Replace(optionEscaper.Replace(value))
}
