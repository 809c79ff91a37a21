package parser

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeLossy decodes data as UTF-8, replacing invalid sequences.
func decodeLossy(data []byte) string {
	s := strings.ToValidUTF8(string(data), "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// printableRuns keeps runs of at least four printable characters, which is
// enough to recover the text stream of legacy binary .doc files.
func printableRuns(data []byte) string {
	s := decodeLossy(data)
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n >= 4 {
			out = append(out, strings.TrimSpace(cur.String()))
		}
		cur.Reset()
		n = 0
	}
	for _, r := range s {
		if r == utf8.RuneError || (!unicode.IsPrint(r) && r != '\n' && r != '\t') {
			flush()
			continue
		}
		cur.WriteRune(r)
		n++
	}
	flush()
	return strings.Join(out, "\n")
}

// rtfSkipDestinations are groups whose content is never body text.
var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "header": true, "footer": true, "headerl": true,
	"headerr": true, "footerl": true, "footerr": true, "listtable": true,
	"listoverridetable": true, "rsidtbl": true, "themedata": true,
	"datastore": true, "latentstyles": true, "generator": true, "xmlnstbl": true,
}

// StripRTF removes RTF control words and groups, decoding \'hh escapes as
// Windows-1252 and \uN as Unicode. It is a heuristic and tolerates
// malformed input.
func StripRTF(src string) string {
	var (
		out       strings.Builder
		skipDepth = -1 // group depth at which skipping started
		depth     int
		skipNext  int // fallback characters to drop after \uN
	)
	dec := charmap.Windows1252.NewDecoder()

	emit := func(s string) {
		if skipDepth >= 0 {
			return
		}
		if skipNext > 0 {
			skipNext--
			return
		}
		out.WriteString(s)
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			depth++
			if i+2 < len(src) && src[i+1] == '\\' && src[i+2] == '*' && skipDepth < 0 {
				skipDepth = depth
			}
		case '}':
			if skipDepth == depth {
				skipDepth = -1
			}
			depth--
		case '\r', '\n':
		case '\\':
			if i+1 >= len(src) {
				continue
			}
			next := src[i+1]
			switch {
			case next == '\\' || next == '{' || next == '}':
				emit(string(next))
				i++
			case next == '\'':
				if i+3 < len(src) {
					if b, err := strconv.ParseUint(src[i+2:i+4], 16, 8); err == nil {
						decoded, _ := dec.Bytes([]byte{byte(b)})
						emit(string(decoded))
					}
				}
				i += 3
			case next == '~':
				emit(" ")
				i++
			case next == '-' || next == '_':
				i++
			case isASCIILetter(next):
				j := i + 1
				for j < len(src) && isASCIILetter(src[j]) {
					j++
				}
				word := src[i+1 : j]
				k := j
				if k < len(src) && (src[k] == '-' || isASCIIDigit(src[k])) {
					k++
					for k < len(src) && isASCIIDigit(src[k]) {
						k++
					}
				}
				param := src[j:k]
				if k < len(src) && src[k] == ' ' {
					k++
				}
				i = k - 1

				if rtfSkipDestinations[word] && skipDepth < 0 {
					skipDepth = depth
					continue
				}
				switch word {
				case "par", "line", "row", "sect", "page":
					emit("\n")
				case "tab":
					emit("\t")
				case "cell":
					emit(" | ")
				case "u":
					if n, err := strconv.Atoi(param); err == nil {
						if n < 0 {
							n += 65536
						}
						emit(string(rune(n)))
						if skipDepth < 0 {
							skipNext = 1
						}
					}
				}
			default:
				i++
			}
		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			emit(string(r))
			i += size - 1
		}
	}

	lines := strings.Split(out.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isASCIIDigit(c byte) bool  { return c >= '0' && c <= '9' }
