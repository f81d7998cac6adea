package pascalvoc

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"dsmanager/pkg/domain"
)

const sampleXML = `<?xml version="1.0"?>
<annotation>
	<folder>imgs</folder>
	<filename>a.jpg</filename>
	<size><width>200</width><height>100</height><depth>3</depth></size>
	<segmented>0</segmented>
	<object>
		<name>bird_nest</name>
		<pose>Unspecified</pose>
		<truncated>0</truncated>
		<difficult>0</difficult>
		<bndbox><xmin>21</xmin><ymin>11</ymin><xmax>60</xmax><ymax>50</ymax></bndbox>
	</object>
	<object>
		<name>insulator</name>
		<bndbox><xmin>101.0</xmin><ymin>1</ymin><xmax>200</xmax><ymax>100</ymax></bndbox>
	</object>
</annotation>`

func TestDecodeDetections(t *testing.T) {
	a, err := Decode(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Filename != "a.jpg" || a.Size.Depth != 3 || len(a.Objects) != 2 {
		t.Fatalf("unexpected annotation %+v", a)
	}
	dets, err := a.Detections()
	if err != nil {
		t.Fatalf("detections: %v", err)
	}
	want := [][4]float64{{0.1, 0.1, 0.2, 0.4}, {0.5, 0, 0.5, 1}}
	for i, d := range dets.Detections {
		for j := range want[i] {
			if math.Abs(d.BoundingBox[j]-want[i][j]) > 1e-9 {
				t.Fatalf("det %d box %v, want %v", i, d.BoundingBox, want[i])
			}
		}
	}
	if dets.Detections[0].Label != "bird_nest" {
		t.Fatalf("label = %s", dets.Detections[0].Label)
	}
}

func TestDetectionsRequiresSize(t *testing.T) {
	a := &Annotation{Objects: []Object{{Name: "x"}}}
	if _, err := a.Detections(); !errors.Is(err, ErrNoSize) {
		t.Fatalf("expected ErrNoSize, got %v", err)
	}
}

func TestFromDetectionInvertsDetection(t *testing.T) {
	obj := Object{Name: "n", BndBox: BndBox{XMin: 21, YMin: 11, XMax: 60, YMax: 50}}
	back := FromDetection(obj.Detection(200, 100), 200, 100)
	if back.BndBox != obj.BndBox {
		t.Fatalf("round trip box %+v, want %+v", back.BndBox, obj.BndBox)
	}
	if back.Pose != DefaultPose {
		t.Fatalf("pose = %q", back.Pose)
	}
}

func TestEncode(t *testing.T) {
	md := domain.ImageMetadata{Width: 200, Height: 100, NumChannels: 3}
	dets := &domain.Detections{Detections: []domain.Detection{{Label: "a", BoundingBox: [4]float64{0.1, 0.1, 0.2, 0.4}}}}
	var buf bytes.Buffer
	if err := New("a.jpg", md, dets).Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<?xml", "<filename>a.jpg</filename>", "<depth>3</depth>", "<xmin>21</xmin>", "<ymax>50</ymax>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("encoded output missing %q:\n%s", want, out)
		}
	}
	back, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode encoded: %v", err)
	}
	if len(back.Objects) != 1 || back.Objects[0].Name != "a" {
		t.Fatalf("unexpected decoded objects %+v", back.Objects)
	}
}

func TestExtraFieldsKeepNonVOCElements(t *testing.T) {
	doc := strings.Replace(sampleXML, "<segmented>0</segmented>",
		"<segmented>0</segmented>\n\t<data_source>line-cam</data_source>\n\t<img_quality> 3 </img_quality>", 1)
	a, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := a.ExtraFields()
	if len(got) != 2 || got["data_source"] != "line-cam" || got["img_quality"] != "3" {
		t.Fatalf("extra fields = %#v", got)
	}
	if len(a.Objects) != 2 || a.Filename != "a.jpg" {
		t.Fatalf("schema elements leaked into extras: %+v", a)
	}
	var buf bytes.Buffer
	if err := a.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(buf.String(), "<data_source>line-cam</data_source>") {
		t.Fatalf("extra element lost on encode:\n%s", buf.String())
	}
}
