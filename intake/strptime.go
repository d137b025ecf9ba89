package intake

import (
	"fmt"
	"strings"
)

// strptime directive -> Go reference layout fragment. The intake
// mapping keeps the hospital's strptime-style date formats, so the
// parser translates them instead of asking operators to learn Go
// reference dates.
var strptimeDirectives = map[byte]string{
	'd': "02",
	'm': "01",
	'Y': "2006",
	'y': "06",
	'H': "15",
	'M': "04",
	'S': "05",
}

// StrptimeLayout converts a strptime-style format string such as
// "%d/%m/%Y" into a Go time layout. An unsupported directive is a
// configuration error.
func StrptimeLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("date format %q ends with a bare %%", format)
		}
		i++
		d := format[i]
		if d == '%' {
			b.WriteByte('%')
			continue
		}
		frag, ok := strptimeDirectives[d]
		if !ok {
			return "", fmt.Errorf("date format %q uses unsupported directive %%%c", format, d)
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}
