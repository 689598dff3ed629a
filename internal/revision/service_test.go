package revision

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"dokflow/api/internal/content"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraph(text string) content.Node {
	return content.Node{Type: "doc", Content: []content.Node{
		{Type: "paragraph", Content: []content.Node{{Type: "text", Text: text}}},
	}}
}

func TestRecordLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first := Snapshot{Title: "Kickoff", Sections: []content.Section{{Title: "Agenda", Content: paragraph("v1")}}}
	commit, created, err := svc.Record("mom", 4, first, "Sari", "Create mom")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, commit.Hash)
	_, err = os.Stat(filepath.Join(tempDir, "mom-4", ".git"))
	require.NoError(t, err, "repo directory missing")

	again, created, err := svc.Record("mom", 4, first, "Sari", "Save without changes")
	require.NoError(t, err)
	assert.False(t, created, "unchanged snapshot must not create a commit")
	assert.Equal(t, commit.Hash, again.Hash)

	second := Snapshot{Title: "Kickoff", Sections: []content.Section{{Title: "Agenda", Content: paragraph("v2")}}}
	_, created, err = svc.Record("mom", 4, second, "Budi", "Update agenda")
	require.NoError(t, err)
	require.True(t, created)

	history, err := svc.History("mom", 4, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Budi", history[0].Author)
	assert.Equal(t, "Sari", history[1].Author)

	limited, err := svc.History("mom", 4, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	old, err := svc.SnapshotAt("mom", 4, history[1].Hash)
	require.NoError(t, err)
	assert.Equal(t, "v1", old.Sections[0].Content.PlainText())
}

func TestHistoryOfUnknownDocumentIsEmpty(t *testing.T) {
	history, err := New(t.TempDir()).History("jik", 77, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestKindsAreSeparateRepos(t *testing.T) {
	svc := New(t.TempDir())
	_, _, err := svc.Record("mom", 1, Snapshot{Title: "a"}, "x", "m")
	require.NoError(t, err)

	history, err := svc.History("jik", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, history, "jik-1 must not share mom-1 history")
}

func TestConcurrentRecordsSerialise(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap := Snapshot{Title: "t", Sections: []content.Section{{Title: "s", Content: paragraph(string(rune('a' + i)))}}}
			_, _, err := svc.Record("mom", 9, snap, "w", "concurrent")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := svc.History("mom", 9, 0)
	require.NoError(t, err)
	assert.Len(t, history, 8)
}

func TestChangedSections(t *testing.T) {
	from := Snapshot{Sections: []content.Section{
		{Title: "Agenda", Content: paragraph("same")},
		{Title: "Diskusi", Content: paragraph("old")},
		{Title: "Lain-lain", Content: paragraph("gone")},
	}}
	to := Snapshot{Sections: []content.Section{
		{Title: "Agenda", Content: paragraph("same")},
		{Title: "Diskusi", Content: paragraph("new")},
		{Title: "Keputusan", Content: paragraph("added")},
	}}

	assert.Equal(t, []string{"Diskusi", "Keputusan", "Lain-lain"}, ChangedSections(from, to))
}

func TestSanitizeEmail(t *testing.T) {
	assert.Equal(t, "Siti.Aminah", sanitizeEmail("Siti Aminah"))
	assert.Equal(t, "user", sanitizeEmail("!!"))
}
