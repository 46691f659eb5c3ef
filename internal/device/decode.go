package device

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/vbonduro/fridgecam/internal/apperr"
)

var unquotedKey = regexp.MustCompile(`([{,])\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)

// RepairJSON quotes bare object keys, e.g. {id: "x"} becomes { "id": "x"}.
// Already-quoted keys do not match.
func RepairJSON(s string) string {
	return unquotedKey.ReplaceAllString(s, `${1} "${2}":`)
}

// DecodeImage decodes standard base64, ignoring embedded whitespace.
// Unpadded input is accepted when it is a complete unpadded encoding.
func DecodeImage(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Some firmware drops the padding.
		if raw, rerr := base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "=")); rerr == nil {
			return raw, nil
		}
		return nil, apperr.DataFormat("device.DecodeImage", fmt.Errorf("invalid base64 image: %w", err))
	}
	return data, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a camera timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Errorf(apperr.KindDataFormat, "device.ParseTimestamp", "unrecognised timestamp %q", s)
}

// CaptureTime resolves when an image was taken: the reported timestamp if
// it parses, otherwise the EXIF DateTime embedded in the image.
func CaptureTime(timestamp string, image []byte) (time.Time, error) {
	t, err := ParseTimestamp(timestamp)
	if err == nil {
		return t, nil
	}
	x, xerr := exif.Decode(bytes.NewReader(image))
	if xerr != nil {
		return time.Time{}, err
	}
	taken, xerr := x.DateTime()
	if xerr != nil {
		return time.Time{}, err
	}
	// EXIF DateTime carries no zone; keep the wall clock and read it as UTC.
	return time.Date(taken.Year(), taken.Month(), taken.Day(),
		taken.Hour(), taken.Minute(), taken.Second(), 0, time.UTC), nil
}
