package gate

import "net/http"

// ResponseWriter is an http.ResponseWriter that reports whether a status or
// body has been written.
type ResponseWriter interface {
	http.ResponseWriter
	Written() bool
}

// Track wraps w so that downstream handlers can ask whether the response is
// already committed. Writers that already report Written are returned as is.
func Track(w http.ResponseWriter) ResponseWriter {
	if rw, ok := w.(ResponseWriter); ok {
		return rw
	}
	return &trackingWriter{ResponseWriter: w}
}

type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Written() bool { return w.written }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *trackingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.written = true
		f.Flush()
	}
}
