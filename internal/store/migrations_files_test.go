package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("..", "..", "db", "migrations"))
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		require.False(t, byVersion[version][direction], "duplicate %s migration file for version %s", direction, version)
		byVersion[version][direction] = true
	}

	require.NotEmpty(t, byVersion, "no migrations discovered")
	for version, dirs := range byVersion {
		assert.True(t, dirs["up"] && dirs["down"], "version %s must include both up and down files", version)
	}
}

func TestMigrationFilesFindsEmbeddedLayout(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_more.up.sql":   {Data: []byte("SELECT 2")},
		"migrations/0001_init.up.sql":   {Data: []byte("SELECT 1")},
		"migrations/0001_init.down.sql": {Data: []byte("SELECT 0")},
		"README.md":                     {Data: []byte("notes")},
	}

	files, err := migrationFiles(fsys, ".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/0001_init.up.sql", "migrations/0002_more.up.sql"}, files)
}

func TestMigrationFilesFindsFlatDirectory(t *testing.T) {
	files, err := migrationFiles(os.DirFS(filepath.Join("..", "..", "db", "migrations")), ".down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_init.down.sql", files[0])
}
