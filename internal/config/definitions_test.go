package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/styledrop/internal/attachment"
	"github.com/dharsanguruparan/styledrop/internal/keypath"
	"github.com/dharsanguruparan/styledrop/internal/record"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

const sample = `
records:
  Asset:
    image:
      storage: s3
      path: /:record_type/:id/:style.:ext
      processing_url: /images/processing.png
      default_style: small
      strict: true
      disposition: cover
      disposition_attribute: title
      styles:
        - name: small
          encoding: png
          size: 200x200
          stylists: [convert_image]
        - name: original
          stylists: [null]
      validations:
        - kind: presence
        - kind: size
          min: 1
          max: 1048576
        - kind: content_type
          content_types: [image/png]
          patterns: ['^image/']
          unless: trusted
  "*":
    notes:
      root: /srv/notes
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(sample))
	require.NoError(t, err)

	def, ok := c.Lookup("Asset", "image")
	require.True(t, ok)
	assert.Equal(t, storage.KindS3, def.Storage)
	assert.Equal(t, "small", def.DefaultStyle)
	assert.True(t, def.Strict)
	require.Len(t, def.Styles, 2)
	assert.Equal(t, "png", def.Styles[0].Encoding)
	assert.Equal(t, "200x200", def.Styles[0].Size)
	assert.Equal(t, []string{"null"}, def.Styles[1].Stylists)

	require.Len(t, def.Validations, 3)
	assert.Equal(t, attachment.RuleSize, def.Validations[1].Kind)
	assert.EqualValues(t, 1048576, def.Validations[1].Max)
	ct := def.Validations[2]
	require.Len(t, ct.Patterns, 1)
	assert.True(t, ct.Patterns[0].MatchString("image/gif"))
	require.NotNil(t, ct.Unless)

	rec := record.New("Asset", "5", "image")
	assert.False(t, ct.Unless(rec))
	rec.SetAttribute("trusted", true)
	assert.True(t, ct.Unless(rec))

	got := keypath.Resolve(def.Path, rec, keypath.Vars{Style: "small", Ext: "png", ID: "5"})
	assert.Equal(t, "/Asset/5/small.png", got)

	require.NotNil(t, def.Disposition)
	assert.Equal(t, "cover", def.Disposition(rec))
	rec.SetAttribute("title", "holiday")
	assert.Equal(t, "holiday", def.Disposition(rec))
}

func TestCatalog_WildcardFallback(t *testing.T) {
	c, err := ParseCatalog([]byte(sample))
	require.NoError(t, err)

	notes, ok := c.Lookup("Song", "notes")
	require.True(t, ok)
	assert.Equal(t, "/srv/notes", notes.Root)
	song := record.New("Song", "7", "notes")
	assert.Equal(t, "/Song/7/notes/original.bin",
		keypath.Resolve(notes.Path, song, keypath.Vars{Style: "original", Ext: "bin", Attachment: "notes", ID: "7"}))
	_, ok = c.Lookup("Song", "image")
	assert.False(t, ok)

	assert.Equal(t, []string{"image", "notes"}, c.Attachments("Asset"))
	assert.Equal(t, []string{"notes"}, c.Attachments("Song"))
	assert.Equal(t, []string{"*", "Asset"}, c.RecordTypes())
	assert.True(t, c.UsesS3())
}

func TestParseCatalog_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":         `records: {}`,
		"storage":       `records: {A: {f: {storage: ftp}}}`,
		"unnamed style": `records: {A: {f: {styles: [{stylists: [null]}]}}}`,
		"duplicate":     `records: {A: {f: {styles: [{name: a}, {name: a}]}}}`,
		"default style": `records: {A: {f: {default_style: b, styles: [{name: a}]}}}`,
		"rule kind":     `records: {A: {f: {validations: [{kind: virus}]}}}`,
		"size bounds":   `records: {A: {f: {validations: [{kind: size, min: 5, max: 1}]}}}`,
		"pattern":       `records: {A: {f: {validations: [{kind: content_type, patterns: ['(']}]}}}`,
		"flat path":     `records: {A: {f: {path: "/:id-:style.:ext"}}}`,
		"bare path":     `records: {A: {f: {path: ":id-:style.:ext"}}}`,
	}
	for name, doc := range cases {
		_, err := ParseCatalog([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidDefinition, name)
	}

	_, err := ParseCatalog([]byte("records: ["))
	assert.ErrorContains(t, err, "parse definitions")
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	def, ok := c.Lookup("Anything", "file")
	require.True(t, ok)
	assert.Equal(t, attachment.DefaultStyles, def.Styles)
	assert.False(t, c.UsesS3())

	path := filepath.Join(t.TempDir(), "defs.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	c, err = LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, c.Attachments("Asset"), 2)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorContains(t, err, "read definitions")
}
