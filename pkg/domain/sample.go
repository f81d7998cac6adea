// Package domain defines the sample records shared by the dataset catalog,
// the importers and the exporters.
package domain

import (
	"path/filepath"
	"strings"
)

// Reserved field names. Reserved names map onto typed Sample members; every
// other name is stored in Sample.Fields.
const (
	FieldID          = "id"
	FieldFilePath    = "filepath"
	FieldMetadata    = "metadata"
	FieldGroundTruth = "ground_truth"
	FieldTags        = "tags"
)

// Extra field names written by the importers and read by the exporters.
const (
	FieldXMLMD5            = "xml_md5"
	FieldDataSource        = "data_source"
	FieldImgQuality        = "img_quality"
	FieldAdditions         = "additions"
	FieldChiebotID         = "chiebot_ID"
	FieldChiebotSampleTags = "chiebot_sample_tags"
)

// ImageMetadata describes the decoded media file.
type ImageMetadata struct {
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	NumChannels int    `json:"num_channels"`
}

// Detection is a labeled box. BoundingBox is (x, y, width, height) relative
// to the image size, each component in [0, 1].
type Detection struct {
	Label       string     `json:"label"`
	BoundingBox [4]float64 `json:"bounding_box"`
	Confidence  *float64   `json:"confidence,omitempty"`
}

// Corners converts the box to (x_min, y_min, x_max, y_max).
func (d Detection) Corners() [4]float64 {
	b := d.BoundingBox
	return [4]float64{b[0], b[1], b[0] + b[2], b[1] + b[3]}
}

// Detections is the label container stored on the ground_truth field.
type Detections struct {
	Detections []Detection `json:"detections"`
}

// Sample is one media item in a dataset. FilePath is the unique key.
type Sample struct {
	ID          string         `json:"id"`
	FilePath    string         `json:"filepath"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    *ImageMetadata `json:"metadata,omitempty"`
	GroundTruth *Detections    `json:"ground_truth,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// Filename returns the base name of the media file.
func (s Sample) Filename() string {
	return filepath.Base(s.FilePath)
}

// Stem returns the media file name without its extension.
func (s Sample) Stem() string {
	name := s.Filename()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Clone returns a deep copy so callers may mutate the result freely.
func (s Sample) Clone() Sample {
	out := s
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	if s.Metadata != nil {
		md := *s.Metadata
		out.Metadata = &md
	}
	out.GroundTruth = s.GroundTruth.Clone()
	if s.Fields != nil {
		out.Fields = make(map[string]any, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = cloneValue(v)
		}
	}
	return out
}

// Clone deep copies the detection list. A nil receiver yields nil.
func (d *Detections) Clone() *Detections {
	if d == nil {
		return nil
	}
	out := &Detections{Detections: make([]Detection, len(d.Detections))}
	for i, det := range d.Detections {
		if det.Confidence != nil {
			c := *det.Confidence
			det.Confidence = &c
		}
		out.Detections[i] = det
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
