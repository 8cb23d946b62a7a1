package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RawResponse builds a minimal, body-less HTTP/1.1 response that closes the
// connection. It is written straight to connections that have been taken
// away from net/http.
func RawResponse(status int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(http.TimeFormat))
	b.WriteString("Connection: close\r\n")
	b.WriteString("Content-Length: 0\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}
