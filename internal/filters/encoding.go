package filters

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/conneroisu/volt/internal/errors"
)

func normalizeCharset(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "", "_", "").Replace(n)
	switch n {
	case "utf8":
		return "utf8"
	case "latin1", "iso88591", "l1":
		return "latin1"
	}
	return n
}

// ConvertEncoding converts text between character sets. latin1 and utf8
// are converted directly; other pairs go through the WHATWG encoding
// index. Unknown charsets fail with ErrCodeUnsupportedEncoding.
func ConvertEncoding(text, from, to string) (string, error) {
	src, dst := normalizeCharset(from), normalizeCharset(to)
	if src == dst {
		return text, nil
	}

	switch {
	case src == "latin1" && dst == "utf8":
		return charmap.ISO8859_1.NewDecoder().String(text)
	case src == "utf8" && dst == "latin1":
		out, err := charmap.ISO8859_1.NewEncoder().String(text)
		if err != nil {
			return "", errors.NewFilterError(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("text cannot be represented in latin1: %v", err))
		}
		return out, nil
	}

	decoder, err := lookupCharset(from)
	if err != nil {
		return "", err
	}
	encoder, err := lookupCharset(to)
	if err != nil {
		return "", err
	}

	utf8Text := text
	if src != "utf8" {
		if utf8Text, err = decoder.NewDecoder().String(text); err != nil {
			return "", errors.NewFilterError(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("cannot decode %s text: %v", from, err))
		}
	}
	if dst == "utf8" {
		return utf8Text, nil
	}
	out, err := encoder.NewEncoder().String(utf8Text)
	if err != nil {
		return "", errors.NewFilterError(errors.ErrCodeInvalidArgument,
			fmt.Sprintf("cannot encode text as %s: %v", to, err))
	}
	return out, nil
}

func lookupCharset(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil {
		return nil, errors.NewFilterError(errors.ErrCodeUnsupportedEncoding,
			fmt.Sprintf("unsupported encoding %q", name))
	}
	return enc, nil
}
