package mailmsg

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// CharsetReader converts input in the named charset to UTF-8. It is shared by MIME
// header decoding and the IMAP client.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == "utf-8" || label == "us-ascii" {
		return input, nil
	}
	encoding, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return encoding.NewDecoder().Reader(input), nil
}

// decodeCharset falls back to the raw bytes when the charset is unknown.
func decodeCharset(data []byte, charset string) string {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == "utf-8" || label == "us-ascii" {
		return string(data)
	}
	encoding, err := htmlindex.Get(label)
	if err != nil {
		return string(data)
	}
	decoded, err := encoding.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}
