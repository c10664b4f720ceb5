package table

// ColumnIndex converts spreadsheet column letters to a zero-based index:
// "A" -> 0, "B" -> 1, "Z" -> 25, "AA" -> 26. Lowercase letters are
// accepted; anything else yields -1.
func ColumnIndex(letters string) int {
	if letters == "" {
		return -1
	}
	idx := 0
	for _, c := range letters {
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A') + 1
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a') + 1
		default:
			return -1
		}
	}
	return idx - 1
}

// ColumnLetters converts a zero-based column index to spreadsheet letters:
// 0 -> "A", 25 -> "Z", 26 -> "AA". Negative indices yield "".
func ColumnLetters(index int) string {
	if index < 0 {
		return ""
	}
	var out []byte
	n := index + 1
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
