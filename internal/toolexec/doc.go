// Package toolexec runs external command-line tools (ffmpeg, uvx) for the
// pipeline stages. Failed invocations have their stderr captured into a
// per-invocation file under the tool log directory so the error returned to
// callers stays short while the full detail remains on disk.
package toolexec
