package logging

import (
	"io"
	"regexp"
)

var (
	connectionStringCredentials = regexp.MustCompile(`(mongodb(?:\+srv)?://)[^@/\s"]+@`)
	secretFields                = regexp.MustCompile(`("(?:clientSecret|client_secret|apiClientSecret|password)"\s*:\s*)"(?:[^"\\]|\\.)*"`)
)

// Redact masks credentials embedded in connection strings and secret-bearing JSON fields.
func Redact(s string) string {
	return string(redactBytes([]byte(s)))
}

func redactBytes(p []byte) []byte {
	p = connectionStringCredentials.ReplaceAll(p, []byte("${1}<credentials>@"))
	return secretFields.ReplaceAll(p, []byte(`${1}"<redacted>"`))
}

type redactingWriter struct {
	out io.Writer
}

// NewRedactingWriter wraps out so that every write is redacted first.
func NewRedactingWriter(out io.Writer) io.Writer {
	return &redactingWriter{out: out}
}

// Write reports len(p) on success even when redaction changed the length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.out.Write(redactBytes(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
