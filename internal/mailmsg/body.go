package mailmsg

import (
	"bytes"
	"encoding/base64"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
)

// DecodeBody returns the text of a raw message. text/plain parts win over text/html;
// HTML is reduced to text with line structure kept.
func DecodeBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	bodyBytes, err := ioReadAllLimited(parsed.Body, maxMessageBytes)
	if err != nil {
		return ""
	}
	text, _ := decodePart(bodyBytes, parsed.Header.Get("Content-Type"), parsed.Header.Get("Content-Transfer-Encoding"))
	return text
}

// decodePart reports whether the returned text came from HTML.
func decodePart(raw []byte, contentType, transferEncoding string) (string, bool) {
	mediaType, params, _ := mime.ParseMediaType(contentType)
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if strings.HasPrefix(mediaType, "multipart/") {
		return parseMultipartBody(raw, params["boundary"])
	}
	decoded, err := decodeTransferEncoding(bytes.NewReader(raw), transferEncoding)
	if err == nil {
		raw = decoded
	}
	text := decodeCharset(raw, params["charset"])
	if mediaType == "text/html" {
		return stripHTML(text), true
	}
	return strings.TrimSpace(text), false
}

func parseMultipartBody(raw []byte, boundary string) (string, bool) {
	if strings.TrimSpace(boundary) == "" {
		return strings.TrimSpace(string(raw)), false
	}
	reader := multipart.NewReader(bytes.NewReader(raw), boundary)
	plainParts := []string{}
	htmlParts := []string{}
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		data, readErr := ioReadAllLimited(part, maxMessageBytes)
		if readErr != nil {
			continue
		}
		disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if strings.HasPrefix(strings.ToLower(disposition), "attachment") {
			continue
		}
		contentType := part.Header.Get("Content-Type")
		if strings.TrimSpace(contentType) == "" {
			contentType = "text/plain"
		}
		text, fromHTML := decodePart(data, contentType, part.Header.Get("Content-Transfer-Encoding"))
		if text == "" {
			continue
		}
		if fromHTML {
			htmlParts = append(htmlParts, text)
			continue
		}
		plainParts = append(plainParts, text)
	}
	if len(plainParts) > 0 {
		return strings.Join(plainParts, "\n\n"), false
	}
	if len(htmlParts) > 0 {
		return strings.Join(htmlParts, "\n\n"), true
	}
	return strings.TrimSpace(string(raw)), false
}

func decodeTransferEncoding(reader io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return ioReadAllLimited(base64.NewDecoder(base64.StdEncoding, newlineStripper{reader}), maxMessageBytes)
	case "quoted-printable":
		return ioReadAllLimited(quotedprintable.NewReader(reader), maxMessageBytes)
	default:
		return ioReadAllLimited(reader, maxMessageBytes)
	}
}

// newlineStripper drops CR and LF so wrapped base64 decodes with StdEncoding.
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	count, err := n.r.Read(p)
	kept := 0
	for _, b := range p[:count] {
		if b == '\r' || b == '\n' {
			continue
		}
		p[kept] = b
		kept++
	}
	return kept, err
}

var (
	htmlDropPattern  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6])\s*>`)
	htmlTagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
)

// stripHTML keeps one output line per block or line break so line-oriented grammars
// still match.
func stripHTML(input string) string {
	text := htmlDropPattern.ReplaceAllString(input, "")
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	text = htmlBreakPattern.ReplaceAllString(text, "\n")
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	lines := strings.Split(text, "\n")
	for index, line := range lines {
		lines[index] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
