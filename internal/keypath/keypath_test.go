package keypath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type host struct{ kind, id string }

func (h host) RecordType() string { return h.kind }
func (h host) ID() string         { return h.id }

func TestSubstitute(t *testing.T) {
	got := Substitute("assets/:id/:attachment_:style.:ext", Vars{
		Style: "small", Ext: "png", Attachment: "image", ID: "42",
	})
	assert.Equal(t, "assets/42/image_small.png", got)
}

func TestSubstitute_RepeatedTokens(t *testing.T) {
	got := Substitute(":style/:style.:ext", Vars{Style: "thumb", Ext: "jpg"})
	assert.Equal(t, "thumb/thumb.jpg", got)
}

func TestResolve_DefaultTemplate(t *testing.T) {
	got := Resolve(nil, host{"Asset", "7"}, Vars{Style: "original", Ext: "bin", Attachment: "image", ID: "7"})
	assert.Equal(t, "/Asset/image/original.bin", got)
}

func TestResolve_DirStyle(t *testing.T) {
	tmpl := Static("assets/:id/image_:style.:ext")
	got := Resolve(tmpl, host{"Asset", "9"}, Vars{Style: DirStyle, Ext: DirStyle, Attachment: "image", ID: "9"})
	assert.Equal(t, "assets/9", got)
}

func TestResolve_TemplateClosesOverHost(t *testing.T) {
	tmpl := Template(func(h Host) string { return h.RecordType() + "/:id/:style" })
	got := Resolve(tmpl, host{"Song", "3"}, Vars{Style: "mp3", ID: "3"})
	assert.Equal(t, "Song/3/mp3", got)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/tmp/final/assets/1.png", Join("/tmp/final/", "/assets/1.png"))
	assert.Equal(t, "http://cdn.example.com/a.png", Join("http://cdn.example.com", "a.png"))
	assert.Equal(t, "a.png", Join("", "a.png"))
}

func TestForRecord(t *testing.T) {
	got := Resolve(ForRecord("/:record_type/:id/:attachment/:style.:ext"), host{"Song", "3"},
		Vars{Style: "preview", Ext: "ogg", Attachment: "audio", ID: "3"})
	assert.Equal(t, "/Song/3/audio/preview.ogg", got)
}
