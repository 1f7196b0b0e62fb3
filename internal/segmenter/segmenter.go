// Package segmenter picks the SMS character set for a text and counts the
// segments it occupies.
//
// The arithmetic is the single-part capacity applied to the whole text
// (160 GSM-7 or 70 UCS-2 characters per segment). Concatenation headers are
// not subtracted, so long texts may need more segments on the wire than
// reported here.
package segmenter

import (
	"unicode/utf8"

	"github.com/oggyb/sms-gateway/internal/domain/message"
)

const (
	GSM7SegmentSize = 160
	UCS2SegmentSize = 70
)

// gsm7Alphabet is the GSM 03.38 default alphabet plus the national
// letters that map onto it.
const gsm7Alphabet = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

var gsm7 = func() map[rune]struct{} {
	set := make(map[rune]struct{}, utf8.RuneCountInString(gsm7Alphabet))
	for _, r := range gsm7Alphabet {
		set[r] = struct{}{}
	}
	return set
}()

// Result is the outcome of Calculate.
type Result struct {
	Encoding message.Encoding
	Segments int
}

// IsGSM7 reports whether every rune of text is in the GSM-7 default alphabet.
func IsGSM7(text string) bool {
	for _, r := range text {
		if _, ok := gsm7[r]; !ok {
			return false
		}
	}
	return true
}

// Calculate returns the encoding and segment count for text. Length is
// measured in characters, so an emoji counts once. Empty text is GSM-7
// with zero segments.
func Calculate(text string) Result {
	n := utf8.RuneCountInString(text)
	if IsGSM7(text) {
		return Result{Encoding: message.EncodingGSM7, Segments: ceilDiv(n, GSM7SegmentSize)}
	}
	return Result{Encoding: message.EncodingUCS2, Segments: ceilDiv(n, UCS2SegmentSize)}
}

func ceilDiv(n, size int) int {
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
