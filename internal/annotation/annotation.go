// Package annotation serializes a sample into its .anno JSON document.
package annotation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"dsmanager/internal/fsutil"
	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
)

// Ext is the annotation file suffix.
const Ext = ".anno"

// Fixed object placeholders. They are not sourced from the detection.
const (
	ObjectPose       = "Unspecified"
	ObjectConfidence = -1
	ObjectQuality    = 10
)

// ErrMissingMetadata is returned for samples whose image metadata has not
// been computed.
var ErrMissingMetadata = errors.New("annotation: sample metadata missing")

// Record is the .anno document. Fields are declared in key order so the
// encoded object is key-sorted.
type Record struct {
	ID                any          `json:"ID,omitempty"`
	Additions         any          `json:"additions,omitempty"`
	ChiebotSampleTags any          `json:"chiebot_sample_tags"`
	DataSource        any          `json:"data_source,omitempty"`
	ImgQuality        any          `json:"img_quality,omitempty"`
	ImgShape          [3]int       `json:"img_shape"`
	ObjsInfo          []ObjectInfo `json:"objs_info"`
	SampleTags        any          `json:"sample_tags,omitempty"`
}

// ObjectInfo is one detection in corner form.
type ObjectInfo struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence int        `json:"confidence"`
	Difficult  int        `json:"difficult"`
	Mask       []int      `json:"mask"`
	Name       string     `json:"name"`
	Pose       string     `json:"pose"`
	Quality    int        `json:"quality"`
	Truncated  int        `json:"truncated"`
}

// Build derives the record for s. Optional fields are copied only when
// truthy, so absent or empty values never appear as null.
func Build(s domain.Sample) (Record, error) {
	var rec Record
	optional := []struct {
		field string
		dst   *any
	}{
		{domain.FieldDataSource, &rec.DataSource},
		{domain.FieldImgQuality, &rec.ImgQuality},
		{domain.FieldAdditions, &rec.Additions},
		{domain.FieldTags, &rec.SampleTags},
		{domain.FieldChiebotID, &rec.ID},
	}
	for _, o := range optional {
		if v := domain.GetField(&s, o.field, nil); domain.Truthy(v) {
			*o.dst = v
		}
	}
	rec.ChiebotSampleTags = domain.GetField(&s, domain.FieldChiebotSampleTags, []string{})

	if s.Metadata == nil {
		return Record{}, fmt.Errorf("%s: %w", s.FilePath, ErrMissingMetadata)
	}
	rec.ImgShape = [3]int{s.Metadata.Height, s.Metadata.Width, s.Metadata.NumChannels}

	rec.ObjsInfo = []ObjectInfo{}
	if s.GroundTruth != nil {
		for _, det := range s.GroundTruth.Detections {
			rec.ObjsInfo = append(rec.ObjsInfo, ObjectInfo{
				BBox:       det.Corners(),
				Confidence: ObjectConfidence,
				Mask:       []int{},
				Name:       det.Label,
				Pose:       ObjectPose,
				Quality:    ObjectQuality,
			})
		}
	}
	return rec, nil
}

// Marshal encodes rec with 4-space indentation and no HTML escaping.
func Marshal(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Path returns <saveDir>/<stem>.anno for s.
func Path(saveDir string, s domain.Sample) string {
	return filepath.Join(saveDir, s.Stem()+Ext)
}

// Write serializes s into saveDir, overwriting any existing file, and
// returns the written path.
func Write(fsys billy.Filesystem, saveDir string, s domain.Sample) (string, error) {
	rec, err := Build(s)
	if err != nil {
		return "", err
	}
	data, err := Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%s: marshal: %w", s.FilePath, err)
	}
	path := Path(saveDir, s)
	if err := fsutil.WriteFile(fsys, path, data); err != nil {
		return "", err
	}
	return path, nil
}
