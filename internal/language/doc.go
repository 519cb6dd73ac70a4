// Package language normalizes the language identifiers that flow through the
// pipeline: user-supplied tags ("es", "pt-BR", "spa", "Spanish"), engine
// responses (Whisper reports full English names), and the "auto" sentinel.
//
// Parsing and display names come from golang.org/x/text/language so any
// BCP 47 tag is accepted; comparisons happen on the base ISO 639-1 code.
package language
