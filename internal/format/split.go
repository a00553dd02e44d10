package format

import "strings"

// DefaultMaxMessageLength is Discord's message size limit.
const DefaultMaxMessageLength = 2000

const (
	paragraphSeparator = "\n\n"
	sentenceSeparator  = ". "
)

// SplitMessage splits text into chunks of at most maxLength units, breaking
// on paragraphs first and on sentences for paragraphs that are too long.
// A single sentence longer than maxLength is emitted as one oversized chunk.
// Blank text yields no chunks. maxLength <= 0 means DefaultMaxMessageLength.
func SplitMessage(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if textLength(text) <= maxLength {
		return []string{text}
	}

	var (
		chunks  []string
		current string
	)
	flush := func() {
		if c := strings.TrimSpace(current); c != "" {
			chunks = append(chunks, c)
		}
		current = ""
	}
	// The +2 reserves room for the separator even on an empty chunk.
	fits := func(segment string) bool {
		return textLength(current)+textLength(segment)+2 <= maxLength
	}

	for _, paragraph := range strings.Split(text, paragraphSeparator) {
		if fits(paragraph) {
			current = appendSegment(current, paragraph, paragraphSeparator)
			continue
		}
		flush()
		if textLength(paragraph) <= maxLength {
			current = paragraph
			continue
		}
		for _, sentence := range strings.Split(paragraph, sentenceSeparator) {
			if fits(sentence) {
				current = appendSegment(current, sentence, sentenceSeparator)
				continue
			}
			flush()
			current = sentence
		}
	}
	flush()
	return chunks
}

func appendSegment(current, segment, sep string) string {
	if current == "" {
		return segment
	}
	return current + sep + segment
}

// textLength counts UTF-16 code units, the unit Discord limits on.
func textLength(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
