package fwup

import "strings"

const hexDigits = "0123456789ABCDEF"

// TokenSeparator joins the per-byte hex tokens of a payload.
const TokenSeparator = "_"

// EncodeHex renders data as 0xHH tokens joined by TokenSeparator, e.g.
// []byte{0x00, 0x1A, 0xFF} becomes "0x00_0x1A_0xFF". Bytes keep their file
// order and no checksum is added.
func EncodeHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(data)*5 - 1)
	for i, b := range data {
		if i > 0 {
			sb.WriteString(TokenSeparator)
		}
		sb.WriteString("0x")
		sb.WriteByte(hexDigits[b>>4])
		sb.WriteByte(hexDigits[b&0x0f])
	}
	return sb.String()
}
