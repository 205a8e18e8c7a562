package frames

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// Encoding selects how request bodies map to frame bytes.
type Encoding string

const (
	// EncodingAuto stores PNG bodies verbatim and base64-decodes anything else.
	EncodingAuto Encoding = "auto"
	// EncodingRaw stores the body verbatim.
	EncodingRaw Encoding = "raw"
	// EncodingBase64 decodes the body, tolerating a data URL prefix.
	EncodingBase64 Encoding = "base64"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ParseEncoding maps a config value onto an Encoding.
func ParseEncoding(value string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(value))) {
	case "", EncodingAuto:
		return EncodingAuto, nil
	case EncodingRaw:
		return EncodingRaw, nil
	case EncodingBase64:
		return EncodingBase64, nil
	default:
		return "", fmt.Errorf("unknown frame encoding %q", value)
	}
}

func decodeBody(enc Encoding, body []byte) ([]byte, error) {
	switch enc {
	case EncodingRaw:
		return body, nil
	case EncodingBase64:
		return decodeBase64(body)
	default:
		if bytes.HasPrefix(body, pngSignature) {
			return body, nil
		}
		return decodeBase64(body)
	}
}

// decodeBase64 accepts the output of canvas.toDataURL with or without its
// "data:<type>;base64," prefix.
func decodeBase64(body []byte) ([]byte, error) {
	payload := bytes.TrimSpace(body)
	if bytes.HasPrefix(payload, []byte("data:")) {
		comma := bytes.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("data url without payload")
		}
		if !bytes.HasSuffix(payload[:comma], []byte(";base64")) {
			return nil, fmt.Errorf("data url is not base64 encoded")
		}
		payload = payload[comma+1:]
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty frame payload")
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(out, payload)
	if err == nil {
		return out[:n], nil
	}
	unpadded := bytes.TrimRight(payload, "=")
	out = make([]byte, base64.RawStdEncoding.DecodedLen(len(unpadded)))
	n, rawErr := base64.RawStdEncoding.Decode(out, unpadded)
	if rawErr != nil {
		return nil, fmt.Errorf("decode base64 frame: %w", err)
	}
	return out[:n], nil
}
