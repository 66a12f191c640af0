package processfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessFileManager_WithDefaults(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{}, logging.NewNopLogger())

	assert.NotNil(t, manager)
	assert.Equal(t, DefaultAppName, manager.config.AppName)
	assert.NotEmpty(t, manager.config.ServiceContext)
}

func TestGeneratePIDFilePath(t *testing.T) {
	base := t.TempDir()

	flat := NewProcessFileManager(ProcessFileConfig{BaseDirectory: base}, logging.NewNopLogger())
	assert.Equal(t, filepath.Join(base, "core.pid"), flat.GeneratePIDFilePath("core"))

	nested := NewProcessFileManager(ProcessFileConfig{BaseDirectory: base, UseSubdirectory: true}, logging.NewNopLogger())
	assert.Equal(t, filepath.Join(base, DefaultAppName, "studio.pid"), nested.GeneratePIDFilePath("studio"))
}

func TestGeneratePIDFilePath_SystemService(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{
		ServiceContext:  SystemService,
		UseSubdirectory: true,
	}, logging.NewNopLogger())

	path := manager.GeneratePIDFilePath("core")

	assert.True(t, filepath.IsAbs(path))
	assert.Contains(t, path, DefaultAppName)
	assert.Equal(t, "core.pid", filepath.Base(path))
	if runtime.GOOS == "linux" {
		assert.Contains(t, []string{"/run", "/var/run"}, filepath.Dir(filepath.Dir(path)))
	}
}

func TestGeneratePIDFilePath_UserService(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG_RUNTIME_DIR is not used on Windows")
	}
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	manager := NewProcessFileManager(ProcessFileConfig{ServiceContext: UserService}, logging.NewNopLogger())

	assert.Equal(t, filepath.Join(runtimeDir, "core.pid"), manager.GeneratePIDFilePath("core"))
}

func TestResolvePIDFilePath(t *testing.T) {
	base := t.TempDir()
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: base}, logging.NewNopLogger())

	assert.Equal(t, filepath.Join(base, "core.pid"), manager.ResolvePIDFilePath(AutoPath, "core"))
	assert.Equal(t, "/srv/explicit.pid", manager.ResolvePIDFilePath("/srv/explicit.pid", "core"))
}

func TestWriteAndReadPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "core.pid")
	manager := NewProcessFileManager(ProcessFileConfig{}, logging.NewNopLogger())

	require.NoError(t, manager.WritePIDFile(path, 4242))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(content))

	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	_, err = os.Stat(filepath.Join(filepath.Dir(path), ".write_test"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadPIDFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPIDFile(filepath.Join(dir, "missing.pid"))
	assert.True(t, errors.IsIOError(err))

	garbage := filepath.Join(dir, "garbage.pid")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-pid\n"), 0644))
	_, err = ReadPIDFile(garbage)
	assert.True(t, errors.IsValidationError(err))

	negative := filepath.Join(dir, "negative.pid")
	require.NoError(t, os.WriteFile(negative, []byte("-5"), 0644))
	_, err = ReadPIDFile(negative)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidatePIDFileDirectory_ParentIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	err := ValidatePIDFileDirectory(filepath.Join(file, "core.pid"))
	assert.True(t, errors.IsValidationError(err))
}
