package qti

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/pavelanni/quizbank/internal/model"
)

const (
	assessmentFile = "assessment.xml"
	manifestFile   = "imsmanifest.xml"
)

// Package is a built assessment: the assessment and manifest documents plus
// the items that made it in and the ones that were skipped.
type Package struct {
	Title      string
	Assessment []byte
	Manifest   []byte
	Items      []*Item
	Skipped    []*model.SkipError
}

// AssessmentIdent derives a stable assessment identifier from the quiz
// title, so rebuilding the same quiz gives identical output.
func AssessmentIdent(title string) string {
	return "A" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("quizbank:assessment:"+title)).String()
}

func (p *Package) encode() error {
	doc := questestinterop{
		Xmlns: asiNamespace,
		Assessment: assessment{
			Ident:   AssessmentIdent(p.Title),
			Title:   p.Title,
			Section: section{Ident: "root_section", Items: p.Items},
		},
	}
	var err error
	if p.Assessment, err = marshalDoc(doc); err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}

	m := manifest{
		Identifier:     "MANIFEST",
		Version:        "1.1.4",
		Xmlns:          "http://www.imsproject.org/xsd/imscp_rootv1p1p2",
		XmlnsImsmd:     "http://www.imsglobal.org/xsd/imsmd_rootv1p2p1",
		XmlnsXsi:       "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: "http://www.imsproject.org/xsd/imscp_rootv1p1p2 imscp_rootv1p1p2.xsd http://www.imsglobal.org/xsd/imsmd_rootv1p2p1 imsmd_rootv1p2p1.xsd",
		Resources:      []resource{{Identifier: "RES-ASSMT", Type: "imsqti_xmlv1p2", Href: assessmentFile}},
	}
	m.Resources[0].File.Href = assessmentFile
	if p.Manifest, err = marshalDoc(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

func marshalDoc(v any) ([]byte, error) {
	b, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(b)+1)
	out = append(out, xml.Header...)
	out = append(out, b...)
	return append(out, '\n'), nil
}

// WriteZip writes the package archive: the assessment and its manifest.
func (p *Package) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, f := range []struct {
		name string
		data []byte
	}{
		{manifestFile, p.Manifest},
		{assessmentFile, p.Assessment},
	} {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("add %s: %w", f.name, err)
		}
		if _, err := fw.Write(f.data); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}
