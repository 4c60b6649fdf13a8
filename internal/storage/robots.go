package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
)

const (
	RobotMarker = "robot.yaml"
	CondaFile   = "conda.yaml"
	EnvFile     = ".env"
	ZipSuffix   = ".zip"
)

const defaultRobotYAML = `# Robot configuration
tasks:
  Default:
    shell: python -m robot --report NONE --outputdir output --logtitle "Task log" tasks.robot

environmentConfigs:
  - conda.yaml

artifactsDir: output

PATH:
  - .
PYTHONPATH:
  - .
`

const defaultCondaYAML = `channels:
  - conda-forge

dependencies:
  - python>=3.12
  - pip:
    - robotframework==7.3.2
`

var allowedExtensions = map[string]bool{
	"yaml": true, "yml": true, "zip": true, "txt": true, "py": true, "robot": true, "env": true,
}

var (
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	leadingDotsRe = regexp.MustCompile(`^[._]+`)
)

// Sanitize turns a user-supplied name into a single safe path component.
// The result may be empty.
func Sanitize(name string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	return leadingDotsRe.ReplaceAllString(s, "")
}

type Store struct {
	robotsPath string
	zipPath    string
	logger     *zap.Logger
}

func NewStore(robotsPath, zipPath string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{robotsPath: robotsPath, zipPath: zipPath, logger: logger.Named("storage")}
}

// CountRobots counts subdirectories holding a robot.yaml. A missing robots
// directory counts as zero.
func (s *Store) CountRobots() (int, error) {
	dirs, err := s.robotDirs()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, dir := range dirs {
		if isFile(filepath.Join(dir, RobotMarker)) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListRobots() ([]model.RobotSummary, error) {
	dirs, err := s.robotDirs()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("Robots path does not exist")
		}
		return nil, fmt.Errorf("list robots: %w", err)
	}
	robots := make([]model.RobotSummary, 0, len(dirs))
	for _, dir := range dirs {
		robots = append(robots, s.robotSummary(dir))
	}
	return robots, nil
}

func (s *Store) GetRobot(name string) (model.RobotDetail, error) {
	dir, err := s.existingRobotDir(name)
	if err != nil {
		return model.RobotDetail{}, err
	}

	files := map[string]string{}
	for _, fileName := range []string{RobotMarker, CondaFile, EnvFile} {
		p := filepath.Join(dir, fileName)
		if !isFile(p) {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			files[fileName] = "Error reading file: " + err.Error()
			continue
		}
		files[fileName] = string(b)
	}

	allFiles := []string{}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			allFiles = append(allFiles, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return model.RobotDetail{}, fmt.Errorf("walk robot %s: %w", filepath.Base(dir), err)
	}
	sort.Strings(allFiles)

	return model.RobotDetail{
		Name:     filepath.Base(dir),
		Path:     dir,
		Tasks:    robotTasks(filepath.Join(dir, RobotMarker)),
		Files:    files,
		AllFiles: allFiles,
	}, nil
}

func (s *Store) ReadRobotFile(name, filename string) (model.RobotFile, error) {
	dir, err := s.existingRobotDir(name)
	if err != nil {
		return model.RobotFile{}, err
	}
	safe := Sanitize(strings.ReplaceAll(filename, "/", "_"))
	if safe == "" {
		return model.RobotFile{}, notFound("File not found")
	}
	p := filepath.Join(dir, safe)
	if !isFile(p) {
		return model.RobotFile{}, notFound("File not found")
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return model.RobotFile{}, fmt.Errorf("read %s: %w", safe, err)
	}
	return model.RobotFile{Filename: safe, Content: string(b)}, nil
}

// CreateRobot scaffolds a robot with default robot.yaml and conda.yaml and
// returns its sanitized name and path.
func (s *Store) CreateRobot(name string) (string, string, error) {
	safe := Sanitize(name)
	if safe == "" {
		return "", "", invalid("Robot name is required")
	}
	dir := filepath.Join(s.robotsPath, safe)
	if _, err := os.Stat(dir); err == nil {
		return "", "", conflict("Robot already exists")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create robot dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, RobotMarker), []byte(defaultRobotYAML), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", RobotMarker, err)
	}
	if err := os.WriteFile(filepath.Join(dir, CondaFile), []byte(defaultCondaYAML), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", CondaFile, err)
	}
	s.logger.Info("robot created", zap.String("robot", safe))
	return safe, dir, nil
}

func (s *Store) DeleteRobot(name string) (string, error) {
	dir, err := s.existingRobotDir(name)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("delete robot: %w", err)
	}
	s.logger.Info("robot deleted", zap.String("robot", filepath.Base(dir)))
	return filepath.Base(dir), nil
}

// UploadRobotFiles stores each allowed file in the robot directory, creating
// it when needed. Per-file problems are reported, not returned as errors.
func (s *Store) UploadRobotFiles(name string, files []*multipart.FileHeader) (model.UploadReport, error) {
	safe := Sanitize(name)
	if safe == "" {
		return model.UploadReport{}, invalid("Robot name is required")
	}
	if len(files) == 0 {
		return model.UploadReport{}, invalid("No files provided")
	}
	dir := filepath.Join(s.robotsPath, safe)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.UploadReport{}, fmt.Errorf("create robot dir: %w", err)
	}

	report := model.UploadReport{Uploaded: []string{}, Errors: []string{}}
	for _, fh := range files {
		filename := Sanitize(fh.Filename)
		switch {
		case filename == "":
			report.Errors = append(report.Errors, "Invalid filename")
			continue
		case !allowedFile(filename):
			report.Errors = append(report.Errors, filename+": File type not allowed")
			continue
		}
		if err := saveUpload(fh, filepath.Join(dir, filename)); err != nil {
			report.Errors = append(report.Errors, filename+": "+err.Error())
			continue
		}
		report.Uploaded = append(report.Uploaded, filename)
	}
	report.Message = fmt.Sprintf("Uploaded %d file(s)", len(report.Uploaded))
	return report, nil
}

// UpdateRobotCoreFiles overwrites robot.yaml and conda.yaml. Both must be
// non-blank.
func (s *Store) UpdateRobotCoreFiles(name, robotYAML, condaYAML string) (string, error) {
	dir, err := s.existingRobotDir(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(robotYAML) == "" || strings.TrimSpace(condaYAML) == "" {
		return "", invalid("robot.yaml and conda.yaml are required")
	}
	if err := os.WriteFile(filepath.Join(dir, RobotMarker), []byte(robotYAML), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", RobotMarker, err)
	}
	if err := os.WriteFile(filepath.Join(dir, CondaFile), []byte(condaYAML), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", CondaFile, err)
	}
	return filepath.Base(dir), nil
}

// robotDirs lists robot directories sorted by name. Symlinked directories
// count.
func (s *Store) robotDirs() ([]string, error) {
	entries, err := os.ReadDir(s.robotsPath)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(s.robotsPath, e.Name())
		if isDir(p) {
			dirs = append(dirs, p)
		}
	}
	return dirs, nil
}

func (s *Store) existingRobotDir(name string) (string, error) {
	safe := Sanitize(name)
	if safe == "" {
		return "", notFound("Robot not found")
	}
	dir := filepath.Join(s.robotsPath, safe)
	if !isDir(dir) {
		return "", notFound("Robot not found")
	}
	return dir, nil
}

func (s *Store) robotSummary(dir string) model.RobotSummary {
	robotYAML := filepath.Join(dir, RobotMarker)
	condaYAML := filepath.Join(dir, CondaFile)
	envFile := filepath.Join(dir, EnvFile)

	hasRobot := isFile(robotYAML)
	hasConda := isFile(condaYAML)
	return model.RobotSummary{
		Name:              filepath.Base(dir),
		Path:              dir,
		HasRobotYAML:      hasRobot,
		HasCondaYAML:      hasConda,
		HasEnvFile:        isFile(envFile),
		RobocorpHome:      s.robocorpHome(envFile),
		DependenciesCount: countDependencies(condaYAML),
		IsValid:           hasRobot && hasConda,
	}
}

func (s *Store) robocorpHome(envFile string) *string {
	if !isFile(envFile) {
		return nil
	}
	env, err := godotenv.Read(envFile)
	if err != nil {
		s.logger.Debug("unreadable robot env file", zap.String("path", envFile), zap.Error(err))
		return nil
	}
	v, ok := env["ROBOCORP_HOME"]
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	return &v
}

type condaFile struct {
	Dependencies []any `yaml:"dependencies"`
}

// countDependencies counts conda dependencies plus nested pip requirements.
// Files that are not valid YAML fall back to counting "- " list lines.
func countDependencies(path string) int {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var conda condaFile
	if err := yaml.Unmarshal(b, &conda); err != nil {
		return countListLines(b)
	}
	n := 0
	for _, dep := range conda.Dependencies {
		switch d := dep.(type) {
		case string:
			n++
		case map[string]any:
			if pip, ok := d["pip"].([]any); ok {
				n += len(pip)
			}
		}
	}
	return n
}

func countListLines(b []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if strings.HasPrefix(strings.TrimSpace(sc.Text()), "-") {
			n++
		}
	}
	return n
}

type robotFile struct {
	Tasks map[string]any `yaml:"tasks"`
}

func robotTasks(path string) []string {
	tasks := []string{}
	b, err := os.ReadFile(path)
	if err != nil {
		return tasks
	}
	var robot robotFile
	if err := yaml.Unmarshal(b, &robot); err != nil {
		return tasks
	}
	for name := range robot.Tasks {
		tasks = append(tasks, name)
	}
	sort.Strings(tasks)
	return tasks
}

func allowedFile(filename string) bool {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return allowedExtensions[strings.ToLower(ext)]
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
