package testutil

import (
	"archive/zip"
	"bytes"
	"sort"
	"testing"

	"github.com/spf13/afero"
)

// ZipBytes packs the given files (path -> content) into a zip in memory
func ZipBytes(tb testing.TB, files map[string]string) []byte {
	tb.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteCartridge zips files and stores the archive at archivePath on fs
func WriteCartridge(tb testing.TB, fs afero.Fs, archivePath string, files map[string]string) string {
	tb.Helper()
	if err := afero.WriteFile(fs, archivePath, ZipBytes(tb, files), 0o644); err != nil {
		tb.Fatalf("write archive: %v", err)
	}
	return archivePath
}

// SampleManifest covers every resource shape the importer knows plus a
// dangling reference and an unrecognized type
const SampleManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="cctd0001" xmlns="http://www.imsglobal.org/xsd/imsccv1p1/imscp_v1p1"
    xmlns:lom="http://ltsc.ieee.org/xsd/imsccv1p1/LOM/resource">
  <metadata>
    <schema>IMS Common Cartridge</schema>
    <schemaversion>1.1.0</schemaversion>
    <lom:lom>
      <lom:general>
        <lom:title><lom:string>Sample Course</lom:string></lom:title>
      </lom:general>
    </lom:lom>
  </metadata>
  <organizations>
    <organization identifier="org_1" structure="rooted-hierarchy">
      <item identifier="LearningModules">
        <item identifier="m1">
          <title>Week 1</title>
          <item identifier="m1_reading" identifierref="a1"><title>Reading</title></item>
          <item identifier="m1_extras">
            <title>Extras</title>
            <item identifier="m1_discuss" identifierref="dt1"><title>Discuss</title></item>
            <item identifier="m1_deep">
              <title>Deep</title>
              <item identifier="m1_tool" identifierref="lti1"><title>Tool</title></item>
            </item>
          </item>
          <item identifier="m1_gone" identifierref="does_not_exist"><title>Gone</title></item>
          <item identifier="m1_unknown" identifierref="unk1"><title>Mystery</title></item>
        </item>
        <item identifier="top_link" identifierref="wl1"><title>Course Link</title></item>
        <item identifier="m2">
          <title>Week 2</title>
          <item identifier="m2_essay" identifierref="f2"><title>Essay</title></item>
          <item identifier="m2_quiz" identifierref="q1"><title>Quiz</title></item>
        </item>
      </item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="a1" type="webcontent" href="web_resources\a1\a1.html">
      <file href="web_resources\a1\a1.html"/>
    </resource>
    <resource identifier="img1" type="webcontent">
      <file href="web_resources/img/logo.png"/>
    </resource>
    <resource identifier="f2" type="webcontent" href="web_resources/essay.html" intendeduse="assignment">
      <file href="web_resources/essay.html"/>
    </resource>
    <resource identifier="dt1" type="imsdt_xmlv1p1">
      <file href="dt1.xml"/>
      <dependency identifierref="img1"/>
    </resource>
    <resource identifier="lti1" type="imsbasiclti_xmlv1p0">
      <file href="lti1.xml"/>
    </resource>
    <resource identifier="wl1" type="imswl_xmlv1p1">
      <file href="wl1.xml"/>
    </resource>
    <resource identifier="q1" type="imsqti_xmlv1p2/imscc_xmlv1p1/assessment">
      <file href="q1/assessment.xml"/>
    </resource>
    <resource identifier="unk1" type="x-custom/thing">
      <file href="unk1.bin"/>
    </resource>
  </resources>
</manifest>
`

// SampleTopic references the logo through the file base placeholder
const SampleTopic = `<?xml version="1.0" encoding="UTF-8"?>
<topic xmlns="http://www.imsglobal.org/xsd/imsccv1p1/imsdt_v1p1">
  <title>Introductions</title>
  <text texttype="text/html">&lt;p&gt;Say hi &lt;img src="$IMS-CC-FILEBASE$/web_resources/img/logo.png" alt="logo"&gt; and read &lt;a href="http://example.com/x"&gt;this&lt;/a&gt;&lt;/p&gt;</text>
</topic>
`

// SampleTool has custom fields, two vendor extensions and no credentials
const SampleTool = `<?xml version="1.0" encoding="UTF-8"?>
<cartridge_basiclti_link xmlns="http://www.imsglobal.org/xsd/imslticc_v1p0"
    xmlns:blti="http://www.imsglobal.org/xsd/imsbasiclti_v1p0"
    xmlns:lticm="http://www.imsglobal.org/xsd/imslticm_v1p0">
  <blti:title>Bob's Tool</blti:title>
  <blti:description>Grades things</blti:description>
  <blti:launch_url>https://tool.example.com/launch</blti:launch_url>
  <blti:custom>
    <lticm:property name="Key1">Value1</lticm:property>
    <lticm:property name="key1">value-lower</lticm:property>
  </blti:custom>
  <blti:extensions platform="canvas.instructure.com">
    <lticm:property name="domain">tool.example.com</lticm:property>
    <lticm:property name="privacy_level">public</lticm:property>
  </blti:extensions>
  <blti:extensions platform="moodle.org">
    <lticm:property name="Course">Thing</lticm:property>
  </blti:extensions>
</cartridge_basiclti_link>
`

// SampleWebLink is a plain external link
const SampleWebLink = `<?xml version="1.0" encoding="UTF-8"?>
<webLink xmlns="http://www.imsglobal.org/xsd/imsccv1p1/imswl_v1p1">
  <title>Course Site</title>
  <url href="https://example.com/course"/>
</webLink>
`

// SampleFiles is the full file set for SampleManifest
func SampleFiles() map[string]string {
	return map[string]string{
		"imsmanifest.xml":            SampleManifest,
		"web_resources/a1/a1.html":   "<html><body>reading</body></html>",
		"web_resources/img/logo.png": "\x89PNG\r\n\x1a\n0000",
		"web_resources/essay.html":   "<html><body>write an essay</body></html>",
		"dt1.xml":                    SampleTopic,
		"lti1.xml":                   SampleTool,
		"wl1.xml":                    SampleWebLink,
		"q1/assessment.xml":          "<questestinterop/>",
		"unk1.bin":                   "binary",
	}
}
