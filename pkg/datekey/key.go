package datekey

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ext is the extension of every cached image file and remote image object.
const Ext = ".png"

// keyLen is the fixed width of a Key: two digits each for year, month and day.
const keyLen = 6

// Key is the canonical YYMMDD identity of a Day. It is the cache key and,
// with Ext appended, the on-disk and remote filename.
type Key string

var (
	// MinDay is the first day a Key can represent.
	MinDay = New(2000, time.January, 1)
	// MaxDay is the last day a Key can represent.
	MaxDay = New(2099, time.December, 31)
)

// Supported reports whether d lies in the range where KeyOf and DayOf are inverses.
func Supported(d Day) bool {
	return !d.Before(MinDay) && !d.After(MaxDay)
}

// KeyOf returns the key for d. Years are written modulo 100, so the mapping is
// only a bijection for Supported days.
func KeyOf(d Day) Key {
	return Key(fmt.Sprintf("%02d%02d%02d", d.year%100, int(d.month), d.day))
}

// DayOf parses k back into a Day. It returns false for anything that is not
// six ASCII digits naming a real calendar day; it never errors because it is
// used to scan arbitrary filenames.
func DayOf(k Key) (Day, bool) {
	s := string(k)
	if len(s) != keyLen {
		return Day{}, false
	}
	for i := 0; i < keyLen; i++ {
		if s[i] < '0' || s[i] > '9' {
			return Day{}, false
		}
	}
	yy, _ := strconv.Atoi(s[0:2])
	mm, _ := strconv.Atoi(s[2:4])
	dd, _ := strconv.Atoi(s[4:6])
	if mm < 1 || mm > 12 || dd < 1 {
		return Day{}, false
	}

	d := New(2000+yy, time.Month(mm), dd)
	// New normalizes overflow (e.g. Feb 30 -> Mar 2); reject those.
	if d.year != 2000+yy || int(d.month) != mm || d.day != dd {
		return Day{}, false
	}
	return d, true
}

// Valid reports whether k names a real day.
func (k Key) Valid() bool {
	_, ok := DayOf(k)
	return ok
}

// Filename returns the on-disk name for k, e.g. "250105.png".
func (k Key) Filename() string {
	return string(k) + Ext
}

// String returns k as a plain string.
func (k Key) String() string { return string(k) }

// KeyFromFilename extracts the key from a cache filename such as "250105.png".
// Names without the extension, with a directory component, or with a stem
// that is not a valid key return false.
func KeyFromFilename(name string) (Key, bool) {
	if strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, Ext) {
		return "", false
	}
	k := Key(strings.TrimSuffix(name, Ext))
	if !k.Valid() {
		return "", false
	}
	return k, true
}
