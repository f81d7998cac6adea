// Package pascalvoc reads and writes Pascal VOC annotation XML, the sidecar
// label format stored next to every media file.
package pascalvoc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
)

// DefaultPose is written for objects whose pose is unknown.
const DefaultPose = "Unspecified"

// ErrNoSize is returned when an annotation lacks image dimensions.
var ErrNoSize = errors.New("pascalvoc: annotation has no image size")

// Annotation is the root <annotation> element.
type Annotation struct {
	XMLName   xml.Name `xml:"annotation"`
	Folder    string   `xml:"folder,omitempty"`
	Filename  string   `xml:"filename"`
	Path      string   `xml:"path,omitempty"`
	Source    *Source  `xml:"source,omitempty"`
	Size      Size     `xml:"size"`
	Segmented int      `xml:"segmented"`
	Objects   []Object `xml:"object"`
	// Extra keeps top-level elements outside the VOC schema.
	Extra []Element `xml:",any"`
}

// Element is a non-VOC child of <annotation> kept as text.
type Element struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// ExtraFields returns the non-VOC elements keyed by local name, values
// trimmed. A repeated element keeps its last value.
func (a *Annotation) ExtraFields() map[string]any {
	out := make(map[string]any, len(a.Extra))
	for _, e := range a.Extra {
		out[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}
	return out
}

type Source struct {
	Database string `xml:"database"`
}

// Size holds pixel dimensions; Depth is the channel count.
type Size struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type Object struct {
	Name      string `xml:"name"`
	Pose      string `xml:"pose,omitempty"`
	Truncated int    `xml:"truncated"`
	Difficult int    `xml:"difficult"`
	BndBox    BndBox `xml:"bndbox"`
}

// BndBox is a 1-based inclusive pixel rectangle.
type BndBox struct {
	XMin float64 `xml:"xmin"`
	YMin float64 `xml:"ymin"`
	XMax float64 `xml:"xmax"`
	YMax float64 `xml:"ymax"`
}

// Decode parses one annotation document.
func Decode(r io.Reader) (*Annotation, error) {
	var a Annotation
	if err := xml.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("pascalvoc: decode: %w", err)
	}
	return &a, nil
}

// ReadFile decodes the annotation stored at path.
func ReadFile(fsys billy.Filesystem, path string) (*Annotation, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	a, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Encode writes the annotation with an XML header and 4-space indentation.
func (a *Annotation) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("pascalvoc: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Detections converts the objects to relative boxes using the annotation size.
func (a *Annotation) Detections() (*domain.Detections, error) {
	if a.Size.Width <= 0 || a.Size.Height <= 0 {
		return nil, ErrNoSize
	}
	out := &domain.Detections{Detections: make([]domain.Detection, 0, len(a.Objects))}
	for _, o := range a.Objects {
		out.Detections = append(out.Detections, o.Detection(a.Size.Width, a.Size.Height))
	}
	return out, nil
}

// Detection converts a pixel box to (x, y, w, h) relative to width x height.
func (o Object) Detection(width, height int) domain.Detection {
	w, h := float64(width), float64(height)
	b := o.BndBox
	return domain.Detection{
		Label: o.Name,
		BoundingBox: [4]float64{
			(b.XMin - 1) / w,
			(b.YMin - 1) / h,
			(b.XMax - b.XMin + 1) / w,
			(b.YMax - b.YMin + 1) / h,
		},
	}
}

// FromDetection is the inverse of Object.Detection, rounded to whole pixels.
func FromDetection(d domain.Detection, width, height int) Object {
	w, h := float64(width), float64(height)
	x, y, bw, bh := d.BoundingBox[0], d.BoundingBox[1], d.BoundingBox[2], d.BoundingBox[3]
	return Object{
		Name: d.Label,
		Pose: DefaultPose,
		BndBox: BndBox{
			XMin: math.Round(x*w) + 1,
			YMin: math.Round(y*h) + 1,
			XMax: math.Round((x + bw) * w),
			YMax: math.Round((y + bh) * h),
		},
	}
}

// New builds an annotation for filename from metadata and an optional label.
func New(filename string, md domain.ImageMetadata, dets *domain.Detections) *Annotation {
	a := &Annotation{
		Filename: filename,
		Size:     Size{Width: md.Width, Height: md.Height, Depth: md.NumChannels},
	}
	if dets == nil {
		return a
	}
	for _, d := range dets.Detections {
		a.Objects = append(a.Objects, FromDetection(d, md.Width, md.Height))
	}
	return a
}
