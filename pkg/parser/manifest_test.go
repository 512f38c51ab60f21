package parser

import (
	"strings"
	"testing"

	"github.com/NeroQue/cartridge-import-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSample(t *testing.T) *Manifest {
	t.Helper()
	m, err := NewManifestParser(nil).Parse(strings.NewReader(testutil.SampleManifest))
	require.NoError(t, err)
	return m
}

func TestParseMetadata(t *testing.T) {
	m := parseSample(t)

	assert.Equal(t, "cctd0001", m.Identifier)
	assert.Equal(t, "Sample Course", m.Title)
	assert.Equal(t, "1.1.0", m.SchemaVersion)
}

func TestParseResources(t *testing.T) {
	m := parseSample(t)

	require.Len(t, m.ResourceOrder, 8)
	assert.Equal(t, "a1", m.ResourceOrder[0].Identifier)

	tests := []struct {
		id   string
		want ResourceType
	}{
		{"a1", ResourceWebContent},
		{"dt1", ResourceDiscussionTopic},
		{"lti1", ResourceExternalTool},
		{"wl1", ResourceWebLink},
		{"q1", ResourceAssessment},
		{"unk1", ResourceUnknown},
	}
	for _, tt := range tests {
		res, ok := m.Resource(tt.id)
		require.True(t, ok, tt.id)
		assert.Equal(t, tt.want, res.Type, tt.id)
	}

	f2, _ := m.Resource("f2")
	assert.True(t, f2.IsAssignment())

	dt1, _ := m.Resource("dt1")
	assert.Equal(t, []string{"img1"}, dt1.Dependencies)
}

func TestParseNormalizesBackslashPaths(t *testing.T) {
	m := parseSample(t)

	a1, ok := m.Resource("a1")
	require.True(t, ok)
	assert.Equal(t, "web_resources/a1/a1.html", a1.Href)
	assert.Equal(t, []string{"web_resources/a1/a1.html"}, a1.Files)

	for _, res := range m.ResourceOrder {
		assert.NotContains(t, res.Href, `\`)
		for _, f := range res.Files {
			assert.NotContains(t, f, `\`)
		}
	}
}

func TestParseOrganizationTree(t *testing.T) {
	m := parseSample(t)

	require.Len(t, m.Organizations, 3)
	week1 := m.Organizations[0]
	assert.Equal(t, "m1", week1.Identifier)
	assert.Equal(t, "Week 1", week1.Title)
	assert.True(t, week1.IsContainer())
	require.Len(t, week1.Children, 4)

	reading := week1.Children[0]
	assert.Equal(t, 0, reading.Indent)
	require.NotNil(t, reading.Resource)
	assert.Equal(t, "a1", reading.Resource.Identifier)

	extras := week1.Children[1]
	assert.Equal(t, 0, extras.Indent)
	discuss := extras.Children[0]
	assert.Equal(t, 1, discuss.Indent)
	deep := extras.Children[1]
	assert.Equal(t, 1, deep.Indent)
	tool := deep.Children[0]
	assert.Equal(t, 2, tool.Indent)
	assert.Equal(t, 3, tool.Depth)

	link := m.Organizations[1]
	assert.Equal(t, "top_link", link.Identifier)
	assert.False(t, link.IsContainer())
}

func TestParseUnresolvedReferenceIsTitleOnly(t *testing.T) {
	m := parseSample(t)

	gone := m.Organizations[0].Children[2]
	assert.Equal(t, "m1_gone", gone.Identifier)
	assert.Equal(t, "Gone", gone.Title)
	assert.Nil(t, gone.Resource)
	assert.True(t, gone.Unresolved())
}

func TestOutlineCollectsLooseItemsIntoMiscModule(t *testing.T) {
	m := parseSample(t)

	outline := m.Outline()
	require.Len(t, outline, 3)

	assert.Equal(t, "m1", outline[0].Identifier)
	assert.Equal(t, MiscModuleID, outline[1].Identifier)
	assert.Equal(t, MiscModuleTitle, outline[1].Title)
	assert.True(t, outline[1].Synthetic)
	require.Len(t, outline[1].Items, 1)
	assert.Equal(t, "top_link", outline[1].Items[0].Identifier)
	assert.Equal(t, "m2", outline[2].Identifier)
}

func TestOutlineKeepsLooseItemOrder(t *testing.T) {
	manifest := `<manifest identifier="x">
  <organizations><organization><item identifier="root">
    <item identifier="i1" identifierref="r1"><title>One</title></item>
    <item identifier="mod"><title>Module</title></item>
    <item identifier="i2" identifierref="r2"><title>Two</title></item>
  </item></organization></organizations>
  <resources>
    <resource identifier="r1" type="webcontent" href="one.html"><file href="one.html"/></resource>
    <resource identifier="r2" type="webcontent" href="two.html"><file href="two.html"/></resource>
  </resources>
</manifest>`
	m, err := NewManifestParser(nil).Parse(strings.NewReader(manifest))
	require.NoError(t, err)

	outline := m.Outline()
	require.Len(t, outline, 2)
	assert.Equal(t, MiscModuleID, outline[0].Identifier)
	assert.Equal(t, []string{"i1", "i2"}, []string{outline[0].Items[0].Identifier, outline[0].Items[1].Identifier})
	assert.Equal(t, "mod", outline[1].Identifier)
}

func TestParseMalformedManifest(t *testing.T) {
	_, err := NewManifestParser(nil).Parse(strings.NewReader("<manifest><organizations>"))
	require.ErrorIs(t, err, ErrMalformedManifest)

	_, err = NewManifestParser(nil).Parse(strings.NewReader("<notamanifest/>"))
	require.ErrorIs(t, err, ErrMalformedManifest)
}

func TestClassifyResourceType(t *testing.T) {
	assert.Equal(t, ResourceQuestionBank, ClassifyResourceType("imsqti_xmlv1p2/imscc_xmlv1p1/question-bank"))
	assert.Equal(t, ResourceAssociatedContent, ClassifyResourceType("associatedcontent/imscc_xmlv1p1/learning-application-resource"))
	assert.Equal(t, ResourceWebLink, ClassifyResourceType("imswl_xmlv1p2"))
	assert.Equal(t, ResourceWebContent, ClassifyResourceType(" WebContent "))
}
