// Package mux embeds a subtitle file into the source video with ffmpeg.
//
// Burn mode renders cues into the frames through the subtitles filter and
// re-encodes to H.264/AAC; soft mode copies the streams and adds the cues as
// a selectable mov_text track. Output is written to a temporary file, checked
// for a non-zero size, then renamed into place.
package mux
