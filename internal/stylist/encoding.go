package stylist

import "regexp"

// Encoding is a known media encoding: the extension files of that encoding
// get, their media type, and the pattern matched against probe output.
type Encoding struct {
	Name      string
	Ext       string
	MIME      string
	Signature *regexp.Regexp
}

// Encoding tables, probed in order.
var (
	ImageEncodings = []Encoding{
		{Name: "jpg", Ext: "jpg", MIME: "image/jpeg", Signature: regexp.MustCompile(`JPEG`)},
		{Name: "png", Ext: "png", MIME: "image/png", Signature: regexp.MustCompile(`PNG`)},
		{Name: "gif", Ext: "gif", MIME: "image/gif", Signature: regexp.MustCompile(`GIF`)},
	}
	AudioEncodings = []Encoding{
		{Name: "mp3", Ext: "mp3", MIME: "audio/mpeg", Signature: regexp.MustCompile(`MPEG.*layer.*III`)},
		{Name: "vorbis", Ext: "ogg", MIME: "audio/ogg", Signature: regexp.MustCompile(`Vorbis`)},
		{Name: "flac", Ext: "flac", MIME: "audio/flac", Signature: regexp.MustCompile(`FLAC`)},
	}
	TextEncodings = []Encoding{
		{Name: "txt", Ext: "txt", MIME: "text/plain", Signature: regexp.MustCompile(`text`)},
	}
)

// UnknownExt is the extension of a style whose encoding is not in any table.
const UnknownExt = "bin"

// LookupEncoding finds an encoding by name across every table.
func LookupEncoding(name string) (Encoding, bool) {
	for _, table := range [][]Encoding{ImageEncodings, AudioEncodings, TextEncodings} {
		for _, e := range table {
			if e.Name == name {
				return e, true
			}
		}
	}
	return Encoding{}, false
}

// Extension returns the file extension for an encoding name, or UnknownExt.
func Extension(encoding string) string {
	if e, ok := LookupEncoding(encoding); ok {
		return e.Ext
	}
	return UnknownExt
}

// MatchEncoding returns the first encoding in table whose signature matches
// the probe description.
func MatchEncoding(description string, table []Encoding) (Encoding, bool) {
	for _, e := range table {
		if e.Signature.MatchString(description) {
			return e, true
		}
	}
	return Encoding{}, false
}
