package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"dsmanager/internal/pascalvoc"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/image/bmp"
)

// WriteImage writes an opaque w x h RGB image encoded by the path extension
// (.png, .bmp, anything else is JPEG).
func WriteImage(t testing.TB, fsys billy.Filesystem, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 40, G: 90, B: 160, A: 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(&buf, img)
	case ".bmp":
		err = bmp.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	writeFile(t, fsys, path, buf.Bytes())
}

// Obj is shorthand for a VOC object with a pixel box.
func Obj(name string, xmin, ymin, xmax, ymax float64) pascalvoc.Object {
	return pascalvoc.Object{Name: name, Pose: pascalvoc.DefaultPose, BndBox: pascalvoc.BndBox{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}}
}

// WriteVOC writes a VOC sidecar for a w x h RGB image.
func WriteVOC(t testing.TB, fsys billy.Filesystem, path string, w, h int, objs ...pascalvoc.Object) {
	t.Helper()
	a := &pascalvoc.Annotation{
		Filename: filepath.Base(path),
		Size:     pascalvoc.Size{Width: w, Height: h, Depth: 3},
		Objects:  objs,
	}
	var buf bytes.Buffer
	if err := a.Encode(&buf); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	writeFile(t, fsys, path, buf.Bytes())
}

// WriteText writes a plain text fixture.
func WriteText(t testing.TB, fsys billy.Filesystem, path, content string) {
	t.Helper()
	writeFile(t, fsys, path, []byte(content))
}

func writeFile(t testing.TB, fsys billy.Filesystem, path string, data []byte) {
	t.Helper()
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := util.WriteFile(fsys, path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
