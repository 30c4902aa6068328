package pack

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/tmodpack/internal/buildinfo"
	"github.com/jchantrell/tmodpack/internal/tmod"
)

func file(data string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(data)}
}

func pngFile(t *testing.T) *fstest.MapFile {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &fstest.MapFile{Data: buf.Bytes()}
}

func sourceTree(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"build.txt":                 file("displayName = Example\nversion = 0.2\nmodReferences = Lib@1.0\nbuildIgnore = *.psd, Notes/*\nbogus = 1\n"),
		"description.txt":           file("  An example mod.  \n"),
		"Example.cs":                file("class Example {}"),
		"Example.csproj":            file("<Project/>"),
		"icon.png":                  pngFile(t),
		"Items/Sword.cs":            file("class Sword {}"),
		"Items/Sword.png":           pngFile(t),
		"Items/Sword.psd":           file("layers"),
		"Localization/en-US.hjson":  file(string(bytes.Repeat([]byte("Mods.Example.Items.Sword: Sword\n"), 100))),
		"Notes/todo.md":             file("nothing"),
		"Sounds/hit.ogg":            file(string(bytes.Repeat([]byte{7}, 4000))),
		"bin/Debug/Example.dll":     file("dll"),
		"obj/project.assets.json":   file("{}"),
		".git/HEAD":                 file("ref: refs/heads/main"),
		"Old.tmod":                  file("TMOD"),
		"empty.txt":                 file(""),
		"Content/Music/theme.mp3":   file("mp3"),
		"Content/Data/Table.tsv":    file("a\tb\n"),
		"Content/Data/Nested/x.bin": file("x"),
	}
}

func TestDiscover(t *testing.T) {
	files, err := Discover(sourceTree(t), []string{"*.psd", "Notes/*"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Content/Data/Nested/x.bin",
		"Content/Data/Table.tsv",
		"Content/Music/theme.mp3",
		"Items/Sword.png",
		"Localization/en-US.hjson",
		"Sounds/hit.ogg",
		"empty.txt",
		"icon.png",
	}, files)
}

func TestDiscover_BadPattern(t *testing.T) {
	_, err := Discover(fstest.MapFS{}, []string{"[unclosed"})
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	var mu sync.Mutex
	var calls []int
	opts := Options{
		FormatVersion: "2024.8.3.0",
		Workers:       3,
		Transcoders:   []tmod.Transcoder{tmod.RawImageTranscoder()},
		Progress: func(current, total int, description string) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, current)
			assert.Equal(t, 8, total)
		},
	}

	res, err := Build(context.Background(), sourceTree(t), "Example", opts)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Files)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "bogus", res.Diagnostics[0].Key)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, calls)

	a, err := res.Builder.ToReadOnly()
	require.NoError(t, err)

	assert.Equal(t, "Example", a.Name())
	assert.Equal(t, "0.2", a.Version())
	assert.Equal(t, []string{
		tmod.InfoEntry,
		"Content/Data/Nested/x.bin",
		"Content/Data/Table.tsv",
		"Content/Music/theme.mp3",
		"Items/Sword.rawimg",
		"Localization/en-US.hjson",
		"Sounds/hit.ogg",
		"icon.png",
	}, a.ListEntries())

	info, err := a.GetFile(tmod.InfoEntry)
	require.NoError(t, err)
	meta, err := buildinfo.Decode(info)
	require.NoError(t, err)
	assert.Equal(t, "Example", meta.DisplayName)
	assert.Equal(t, "An example mod.", meta.Description)
	assert.Equal(t, []buildinfo.ModReference{{Name: "Lib", Version: "1.0"}}, meta.ModReferences)
	assert.Equal(t, []string{"Lib"}, meta.SortAfter)

	hjson, ok := a.Entry("Localization/en-US.hjson")
	require.True(t, ok)
	assert.True(t, hjson.Compressed())

	ogg, ok := a.Entry("Sounds/hit.ogg")
	require.True(t, ok)
	assert.False(t, ogg.Compressed())
}

func TestBuild_Deterministic(t *testing.T) {
	first, err := Build(context.Background(), sourceTree(t), "Example", Options{Workers: 1})
	require.NoError(t, err)
	second, err := Build(context.Background(), sourceTree(t), "Example", Options{Workers: 8})
	require.NoError(t, err)

	a, err := first.Builder.Bytes()
	require.NoError(t, err)
	b, err := second.Builder.Bytes()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuild_NoManifest(t *testing.T) {
	res, err := Build(context.Background(), fstest.MapFS{"a.txt": file("a")}, "Bare", Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.0", res.Metadata.Version)
	assert.Equal(t, DefaultFormatVersion, res.Builder.FormatVersion())
}

func TestBuild_DuplicateReference(t *testing.T) {
	fsys := fstest.MapFS{"build.txt": file("modReferences = A\nweakReferences = A\n")}
	_, err := Build(context.Background(), fsys, "Bad", Options{})
	assert.ErrorIs(t, err, buildinfo.ErrDuplicateReference)
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, sourceTree(t), "Example", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "MyMod")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Items"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "build.txt"), []byte("version = 1.1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Items", "Sword.txt"), []byte("sword"), 0644))

	out := filepath.Join(t.TempDir(), "out")
	summary, err := Dir(context.Background(), src, out, Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "MyMod.tmod"), summary.Output)

	a, err := tmod.OpenFile(summary.Output)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "MyMod", a.Name())
	assert.Equal(t, "1.1", a.Version())
	assert.NoError(t, a.Verify())
	got, err := a.GetFile("Items/Sword.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("sword"), got)

	_, err = Dir(context.Background(), filepath.Join(src, "build.txt"), out, Options{})
	assert.Error(t, err)
}
