package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fachebot/point-digest/internal/paragraph"
	"github.com/fachebot/point-digest/internal/points"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"驼峰文件名", "data/gunControl_points.txt", "Gun Control", false},
		{"单个单词", "/tmp/abortion_points.txt", "Abortion", false},
		{"无目录", "healthCareReform_p.txt", "Health Care Reform", false},
		{"贪婪匹配到最后一个 _p", "data/foo_pie_points.txt", "Foo_pie", false},
		{"连续大写", "data/USPolicy_points.txt", "U Spolicy", false},
		{"不符合命名", "data/points.txt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveTitle(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "gun_control_formatted_summary.html", FileName("Gun Control"))
	assert.Equal(t, "foo_pie_formatted_summary.html", FileName("Foo_pie"))
	assert.Equal(t, "a_b_formatted_summary.html", FileName("A -- B"))
}

func testLines(t *testing.T, b *points.Bundle) []paragraph.Line {
	lines, err := paragraph.Lines(b, paragraph.CleanFunc(func(text string, isQuestion bool) (string, error) {
		return text, nil
	}))
	require.NoError(t, err)
	return lines
}

func TestRender(t *testing.T) {
	b := &points.Bundle{
		CounterPoints: []points.Pair{{Point: points.NewPoint("Guns protect people."), Other: points.NewPoint("Guns <kill> people.")}},
		CommonlyDiscussedTopicPoints: []points.TopicGroup{
			{Topic: "safety", Points: []points.Point{points.NewPoint("Safety first.")}},
		},
		QuestionPoints: []points.Point{points.NewPoint("Who decides?")},
	}
	view := NewView("Gun Control", b, testLines(t, b))
	view.Abstract = "People disagree."

	r, err := NewRenderer("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, view))
	html := buf.String()

	assert.Contains(t, html, "<title>Gun Control</title>")
	assert.Contains(t, html, `<p class="abstract">People disagree.</p>`)
	assert.Contains(t, html, `<span class="point counter_points" title="Guns &lt;kill&gt; people.">Guns protect people</span>`)
	assert.Contains(t, html, `<span class="point question_points">Who decides?</span>`)
	assert.Contains(t, html, "<li>safety <span>(1)</span></li>")
	assert.Equal(t, []string{"safety"}, view.Topics)
	assert.Equal(t, "Guns protect people\nSafety first.\nWho decides?\n", view.Paragraph)
}

func TestRender_NoAbstractNoTopics(t *testing.T) {
	view := NewView("Empty", nil, nil)
	r, err := NewRenderer("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, view))
	assert.NotContains(t, buf.String(), `class="abstract"`)
	assert.NotContains(t, buf.String(), "Commonly discussed topics")
}

func TestNewRenderer_CustomTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(`{{.Title}}|{{.Paragraph}}`), 0644))

	r, err := NewRenderer(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	b := &points.Bundle{CommonPoints: []points.Point{points.NewPoint("a.")}}
	require.NoError(t, r.Render(&buf, NewView("T", b, testLines(t, b))))
	assert.Equal(t, "T|a.\n", buf.String())
}

func TestNewRenderer_MissingTemplate(t *testing.T) {
	_, err := NewRenderer(filepath.Join(t.TempDir(), "missing.tmpl"))
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r, err := NewRenderer("")
	require.NoError(t, err)

	path, err := r.WriteFile(dir, NewView("Gun Control", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gun_control_formatted_summary.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h1>Gun Control</h1>")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "不应残留临时文件")
}
