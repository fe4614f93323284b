// Package armor implements OpenPGP-style ASCII armor: a BEGIN line, optional
// headers, base64 wrapped at 64 columns, a CRC-24 line and an END line.
package armor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
)

var ErrMalformed = errors.New("armor: malformed block")

// CRC-24 (poly 0x1864CF, init 0xB704CE) compatible with OpenPGP armor.
func crc24(data []byte) uint32 {
	crc := uint32(0xB704CE)
	for _, b := range data {
		crc ^= uint32(b) << 16
		for i := 0; i < 8; i++ {
			crc <<= 1
			if (crc & 0x1000000) != 0 {
				crc ^= 0x1864CF
			}
		}
	}
	return crc & 0xFFFFFF
}

// Block is a decoded armored block.
type Block struct {
	Type    string
	Headers map[string]string
	Bytes   []byte
}

// Encode armors raw as a block of the given type. Headers are written in key
// order.
func Encode(blockType string, raw []byte, headers map[string]string) []byte {
	b64 := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(b64, raw)

	var buf bytes.Buffer
	buf.WriteString("-----BEGIN " + blockType + "-----\n")
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\n", k, headers[k])
	}
	// blank line before data section (even if no headers)
	buf.WriteString("\n")

	for i := 0; i < len(b64); i += 64 {
		end := min(i+64, len(b64))
		buf.Write(b64[i:end])
		buf.WriteByte('\n')
	}
	crc := crc24(raw)
	crcBytes := []byte{byte(crc >> 16), byte(crc >> 8), byte(crc)}
	buf.WriteString("=")
	buf.WriteString(base64.StdEncoding.EncodeToString(crcBytes))
	buf.WriteByte('\n')

	buf.WriteString("-----END " + blockType + "-----\n")
	return buf.Bytes()
}

// Decode parses the first armored block in in. The CRC line is optional but
// verified when present.
func Decode(in []byte) (*Block, error) {
	beginPrefix := []byte("-----BEGIN ")
	start := bytes.Index(in, beginPrefix)
	if start < 0 {
		return nil, ErrMalformed
	}
	in = in[start+len(beginPrefix):]
	endType := bytes.Index(in, []byte("-----"))
	if endType < 0 {
		return nil, ErrMalformed
	}
	blockType := string(in[:endType])
	in = in[endType+len("-----"):]

	end := bytes.Index(in, []byte("-----END "+blockType+"-----"))
	if end < 0 {
		return nil, fmt.Errorf("%w: missing END %s", ErrMalformed, blockType)
	}
	lines := bytes.Split(in[:end], []byte{'\n'})
	for i := range lines {
		lines[i] = bytes.TrimRight(lines[i], "\r")
	}
	// The BEGIN line's own newline leaves an empty first element.
	if len(lines) > 0 && len(lines[0]) == 0 {
		lines = lines[1:]
	}

	hdrs := map[string]string{}
	dataStart := 0
	for i, ln := range lines {
		if len(bytes.TrimSpace(ln)) == 0 {
			dataStart = i + 1
			break
		}
		kv := bytes.SplitN(ln, []byte{':'}, 2)
		if len(kv) != 2 {
			// no header section
			break
		}
		hdrs[string(bytes.TrimSpace(kv[0]))] = string(bytes.TrimSpace(kv[1]))
	}

	var data [][]byte
	for _, ln := range lines[dataStart:] {
		if len(bytes.TrimSpace(ln)) > 0 {
			data = append(data, ln)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	var crcGiven []byte
	if last := data[len(data)-1]; last[0] == '=' {
		b, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(last[1:])))
		if err != nil || len(b) != 3 {
			return nil, fmt.Errorf("%w: bad checksum line", ErrMalformed)
		}
		crcGiven = b
		data = data[:len(data)-1]
	}

	b64 := bytes.Join(data, nil)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(b64)))
	n, err := base64.StdEncoding.Decode(out, b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out = out[:n]

	if crcGiven != nil {
		crc := crc24(out)
		if crcGiven[0] != byte(crc>>16) || crcGiven[1] != byte(crc>>8) || crcGiven[2] != byte(crc) {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrMalformed)
		}
	}
	return &Block{Type: blockType, Headers: hdrs, Bytes: out}, nil
}
