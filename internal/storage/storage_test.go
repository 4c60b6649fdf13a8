package storage

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	root := t.TempDir()
	robots := filepath.Join(root, "robots")
	zips := filepath.Join(root, "hololib_zip")
	require.NoError(t, os.MkdirAll(robots, 0o755))
	require.NoError(t, os.MkdirAll(zips, 0o755))
	return NewStore(robots, zips, nil), robots, zips
}

// fileHeaders builds multipart headers the way net/http would after parsing
// a form with one field holding every file.
func fileHeaders(t *testing.T, field string, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File[field]
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"my-robot":        "my-robot",
		"  spaced name  ": "spaced_name",
		"../../etc":       "etc",
		".env":            "env",
		"__init__.py":     "init__.py",
		"a/b":             "a_b",
		"...":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestCountRobots(t *testing.T) {
	s, robots, _ := newTestStore(t)
	writeFile(t, filepath.Join(robots, "alpha", RobotMarker), "tasks: {}")
	writeFile(t, filepath.Join(robots, "beta", RobotMarker), "tasks: {}")
	require.NoError(t, os.MkdirAll(filepath.Join(robots, "gamma"), 0o755))
	writeFile(t, filepath.Join(robots, "stray.yaml"), "")

	n, err := s.CountRobots()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCountsOnMissingDirectories(t *testing.T) {
	root := t.TempDir()
	s := NewStore(filepath.Join(root, "nope"), filepath.Join(root, "also-nope"), nil)

	robots, err := s.CountRobots()
	require.NoError(t, err)
	assert.Zero(t, robots)

	zips, err := s.CountZips()
	require.NoError(t, err)
	assert.Zero(t, zips)

	list, err := s.ListZips()
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.ListRobots()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountZips(t *testing.T) {
	s, _, zips := newTestStore(t)
	writeFile(t, filepath.Join(zips, "a.zip"), "x")
	writeFile(t, filepath.Join(zips, "b.zip"), "xy")
	writeFile(t, filepath.Join(zips, "notes.txt"), "")
	require.NoError(t, os.MkdirAll(filepath.Join(zips, "dir.zip"), 0o755))

	n, err := s.CountZips()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.ListZips()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.zip", list[0].Name)
	assert.Equal(t, int64(2), list[1].Size)
	assert.NotEmpty(t, list[0].Modified)
}

func TestListRobots(t *testing.T) {
	s, robots, _ := newTestStore(t)
	writeFile(t, filepath.Join(robots, "zeta", RobotMarker), "tasks: {}")
	writeFile(t, filepath.Join(robots, "alpha", RobotMarker), "tasks: {}")
	writeFile(t, filepath.Join(robots, "alpha", CondaFile), defaultCondaYAML)
	writeFile(t, filepath.Join(robots, "alpha", EnvFile), "# local\nROBOCORP_HOME=/opt/robocorp\n")

	list, err := s.ListRobots()
	require.NoError(t, err)
	require.Len(t, list, 2)

	alpha := list[0]
	assert.Equal(t, "alpha", alpha.Name)
	assert.True(t, alpha.IsValid)
	assert.True(t, alpha.HasEnvFile)
	require.NotNil(t, alpha.RobocorpHome)
	assert.Equal(t, "/opt/robocorp", *alpha.RobocorpHome)
	assert.Equal(t, 2, alpha.DependenciesCount)

	zeta := list[1]
	assert.False(t, zeta.IsValid)
	assert.Nil(t, zeta.RobocorpHome)
	assert.Zero(t, zeta.DependenciesCount)
}

func TestCountDependenciesFallsBackOnBadYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, CondaFile)
	writeFile(t, p, "dependencies:\n  - python\n  - pip: [unclosed\n")

	assert.Equal(t, 2, countDependencies(p))
}

func TestCreateGetDeleteRobot(t *testing.T) {
	s, robots, _ := newTestStore(t)

	name, path, err := s.CreateRobot("My Robot")
	require.NoError(t, err)
	assert.Equal(t, "My_Robot", name)
	assert.Equal(t, filepath.Join(robots, "My_Robot"), path)

	_, _, err = s.CreateRobot("My Robot")
	assert.ErrorIs(t, err, ErrConflict)

	_, _, err = s.CreateRobot("   ")
	assert.ErrorIs(t, err, ErrInvalid)

	detail, err := s.GetRobot("My_Robot")
	require.NoError(t, err)
	assert.Equal(t, []string{"Default"}, detail.Tasks)
	assert.Equal(t, []string{CondaFile, RobotMarker}, detail.AllFiles)
	assert.Contains(t, detail.Files[RobotMarker], "tasks:")

	deleted, err := s.DeleteRobot("My_Robot")
	require.NoError(t, err)
	assert.Equal(t, "My_Robot", deleted)

	_, err = s.GetRobot("My_Robot")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeleteRobot("My_Robot")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRobotListsNestedFiles(t *testing.T) {
	s, robots, _ := newTestStore(t)
	writeFile(t, filepath.Join(robots, "r", RobotMarker), "tasks:\n  B: {}\n  A: {}\n")
	writeFile(t, filepath.Join(robots, "r", "resources", "keywords.robot"), "")

	detail, err := s.GetRobot("r")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, detail.Tasks)
	assert.Equal(t, []string{"resources/keywords.robot", RobotMarker}, detail.AllFiles)
}

func TestReadRobotFile(t *testing.T) {
	s, robots, _ := newTestStore(t)
	writeFile(t, filepath.Join(robots, "r", "tasks.robot"), "*** Tasks ***")

	f, err := s.ReadRobotFile("r", "tasks.robot")
	require.NoError(t, err)
	assert.Equal(t, "*** Tasks ***", f.Content)

	_, err = s.ReadRobotFile("r", "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadRobotFile("ghost", "tasks.robot")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadRobotFile("r", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadRobotFiles(t *testing.T) {
	s, robots, _ := newTestStore(t)
	files := fileHeaders(t, "files", map[string]string{
		"tasks.robot": "*** Tasks ***",
		"evil.sh":     "rm -rf /",
	})

	report, err := s.UploadRobotFiles("fresh", files)
	require.NoError(t, err)

	assert.Equal(t, []string{"tasks.robot"}, report.Uploaded)
	assert.Equal(t, []string{"evil.sh: File type not allowed"}, report.Errors)
	assert.Equal(t, "Uploaded 1 file(s)", report.Message)
	assert.FileExists(t, filepath.Join(robots, "fresh", "tasks.robot"))

	_, err = s.UploadRobotFiles("fresh", nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpdateRobotCoreFiles(t *testing.T) {
	s, robots, _ := newTestStore(t)
	_, _, err := s.CreateRobot("r")
	require.NoError(t, err)

	_, err = s.UpdateRobotCoreFiles("r", "tasks: {}", "")
	assert.ErrorIs(t, err, ErrInvalid)

	name, err := s.UpdateRobotCoreFiles("r", "tasks:\n  Run: {}\n", "dependencies: []\n")
	require.NoError(t, err)
	assert.Equal(t, "r", name)

	b, err := os.ReadFile(filepath.Join(robots, "r", RobotMarker))
	require.NoError(t, err)
	assert.Equal(t, "tasks:\n  Run: {}\n", string(b))

	_, err = s.UpdateRobotCoreFiles("ghost", "a", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAndDeleteZip(t *testing.T) {
	s, _, zips := newTestStore(t)

	_, err := s.SaveZip(fileHeaders(t, "file", map[string]string{"notes.txt": "x"})[0])
	assert.ErrorIs(t, err, ErrInvalid)

	name, err := s.SaveZip(fileHeaders(t, "file", map[string]string{"env one.ZIP": "PK"})[0])
	require.NoError(t, err)
	assert.Equal(t, "env_one.ZIP", name)
	assert.FileExists(t, filepath.Join(zips, name))

	name, err = s.SaveZip(fileHeaders(t, "file", map[string]string{"robot.zip": "PK"})[0])
	require.NoError(t, err)

	found, err := s.ZipFile("robot.zip")
	require.NoError(t, err)
	assert.Equal(t, name, found)

	deleted, err := s.DeleteZip("robot.zip")
	require.NoError(t, err)
	assert.Equal(t, "robot.zip", deleted)

	_, err = s.DeleteZip("robot.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUppercaseZipIsListedAfterSave(t *testing.T) {
	s, _, zips := newTestStore(t)
	writeFile(t, filepath.Join(zips, "a.zip"), "x")

	name, err := s.SaveZip(fileHeaders(t, "file", map[string]string{"ENV.ZIP": "PK"})[0])
	require.NoError(t, err)

	n, err := s.CountZips()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.ListZips()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, name, list[0].Name)
	assert.Equal(t, "a.zip", list[1].Name)
}
