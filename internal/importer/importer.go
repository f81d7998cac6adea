// Package importer builds catalog samples from media files and their sidecars.
//
// A media file /d/a.jpg may carry two sidecars: /d/a.xml (Pascal VOC label,
// the change-detection key) and /d/a.anno (JSON annotation metadata, the same
// document the annotation exporter writes). Both are optional.
package importer

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"dsmanager/internal/fsutil"
	"dsmanager/internal/pascalvoc"
	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
)

// annoFields maps .anno keys back onto sample field names.
var annoFields = map[string]string{
	"data_source":         domain.FieldDataSource,
	"img_quality":         domain.FieldImgQuality,
	"additions":           domain.FieldAdditions,
	"sample_tags":         domain.FieldTags,
	"ID":                  domain.FieldChiebotID,
	"chiebot_sample_tags": domain.FieldChiebotSampleTags,
}

// SidecarPath returns the label file path for a media file.
func SidecarPath(mediaPath string) string {
	return fsutil.ReplaceExt(mediaPath, ".xml")
}

// AnnoPath returns the annotation metadata path for a media file.
func AnnoPath(mediaPath string) string {
	return fsutil.ReplaceExt(mediaPath, ".anno")
}

// SampleInfo is everything parsed from a media file and its sidecars.
type SampleInfo struct {
	Metadata *domain.ImageMetadata
	Label    *domain.Detections
	Fields   map[string]any
}

// ParseSampleInfo reads image metadata, the VOC label and the extra
// annotation fields for mediaPath. Label is nil when there is no sidecar.
// Extra fields come from non-VOC XML elements and the .anno sidecar; the
// .anno value wins when both set a field.
func ParseSampleInfo(fsys billy.Filesystem, mediaPath string) (SampleInfo, error) {
	var info SampleInfo
	var ann *pascalvoc.Annotation
	sidecar := SidecarPath(mediaPath)
	ok, err := fsutil.Exists(fsys, sidecar)
	if err != nil {
		return info, err
	}
	if ok {
		if ann, err = pascalvoc.ReadFile(fsys, sidecar); err != nil {
			return info, err
		}
	}

	md, mdErr := BuildImageMetadata(fsys, mediaPath)
	switch {
	case mdErr == nil:
		if ann != nil && ann.Size.Depth > 0 {
			md.NumChannels = ann.Size.Depth
		}
	case ann != nil && ann.Size.Width > 0 && ann.Size.Height > 0:
		md = &domain.ImageMetadata{Width: ann.Size.Width, Height: ann.Size.Height, NumChannels: ann.Size.Depth}
	default:
		return info, mdErr
	}
	info.Metadata = md

	if ann != nil {
		// The label is scaled by the decoded image size, not the XML one.
		size := ann.Size
		size.Width, size.Height = md.Width, md.Height
		ann.Size = size
		if info.Label, err = ann.Detections(); err != nil {
			return info, fmt.Errorf("%s: %w", sidecar, err)
		}
	}

	annoFields, err := readAnnoFields(fsys, AnnoPath(mediaPath))
	if err != nil {
		return info, err
	}
	info.Fields = xmlFields(ann)
	for k, v := range annoFields {
		info.Fields[k] = v
	}
	return info, nil
}

// reservedXML are names an XML element may not set: typed sample members and
// the checksum written by Apply.
var reservedXML = map[string]bool{
	domain.FieldID:          true,
	domain.FieldFilePath:    true,
	domain.FieldMetadata:    true,
	domain.FieldGroundTruth: true,
	domain.FieldTags:        true,
	domain.FieldXMLMD5:      true,
}

// xmlFields returns the non-VOC elements of ann as string fields.
func xmlFields(ann *pascalvoc.Annotation) map[string]any {
	out := map[string]any{}
	if ann == nil {
		return out
	}
	for k, v := range ann.ExtraFields() {
		if !reservedXML[k] {
			out[k] = v
		}
	}
	return out
}

func readAnnoFields(fsys billy.Filesystem, path string) (map[string]any, error) {
	ok, err := fsutil.Exists(fsys, path)
	if err != nil || !ok {
		return map[string]any{}, err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make(map[string]any, len(annoFields))
	for key, field := range annoFields {
		if v, ok := raw[key]; ok && v != nil {
			out[field] = v
		}
	}
	return out, nil
}

// BuildImageMetadata decodes the image header at path. Supported formats
// are JPEG, PNG, GIF and BMP.
func BuildImageMetadata(fsys billy.Filesystem, path string) (*domain.ImageMetadata, error) {
	st, err := fsys.Stat(path)
	if err != nil {
		return nil, err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return &domain.ImageMetadata{
		SizeBytes:   st.Size(),
		MimeType:    "image/" + format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		NumChannels: channels(cfg.ColorModel),
	}, nil
}

// channels maps a decoder color model to a channel count. Decoders report
// opaque truecolor as RGBA and alpha truecolor as NRGBA.
func channels(m color.Model) int {
	if _, ok := m.(color.Palette); ok {
		return 3
	}
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.CMYKModel, color.NRGBAModel, color.NRGBA64Model:
		return 4
	}
	return 3
}

// Apply overwrites the parsed fields on s and records the sidecar checksum.
func Apply(s *domain.Sample, info SampleInfo, xmlMD5 string) error {
	s.Metadata = info.Metadata
	s.GroundTruth = info.Label
	if err := s.UpdateFields(info.Fields); err != nil {
		return fmt.Errorf("%s: %w", s.FilePath, err)
	}
	if xmlMD5 == "" {
		return nil
	}
	return s.SetField(domain.FieldXMLMD5, xmlMD5)
}

// BuildSample creates a new sample for mediaPath with a fresh ID.
func BuildSample(fsys billy.Filesystem, mediaPath string) (domain.Sample, error) {
	s := domain.Sample{
		ID:       uuid.NewString(),
		FilePath: mediaPath,
		Fields:   map[string]any{},
	}
	info, err := ParseSampleInfo(fsys, mediaPath)
	if err != nil {
		return s, err
	}
	var sum string
	if info.Label != nil {
		if sum, err = fsutil.MD5File(fsys, SidecarPath(mediaPath)); err != nil {
			return s, err
		}
	}
	if err := Apply(&s, info, sum); err != nil {
		return s, err
	}
	if !s.HasField(domain.FieldChiebotID) {
		s.Fields[domain.FieldChiebotID] = uuid.NewString()
	}
	return s, nil
}
