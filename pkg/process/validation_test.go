package process

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mwonya/entrypoint/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateExecutionConfig(t *testing.T) {
	var executable, workDir string
	if runtime.GOOS == "windows" {
		executable = "C:\\Windows\\System32\\cmd.exe"
		workDir = "C:\\Windows\\Temp"
	} else {
		executable = "/bin/sh"
		workDir = os.TempDir()
	}

	appDir := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(appDir, "venv", "bin"), 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(appDir, "venv", "bin", "python"), []byte("x"), 0755))

	notADir := filepath.Join(t.TempDir(), "file.txt")
	assert.NoError(t, os.WriteFile(notADir, []byte("x"), 0644))

	tests := []struct {
		name      string
		config    ExecutionConfig
		shouldErr bool
	}{
		{
			name: "valid_absolute",
			config: ExecutionConfig{
				ExecutablePath:   executable,
				Args:             []string{"-c", "true"},
				Environment:      []string{"DJANGO_SETTINGS_MODULE=mwonya_core.settings"},
				WorkingDirectory: workDir,
				WaitDelay:        5 * time.Second,
			},
			shouldErr: false,
		},
		{
			name:      "valid_bare_name",
			config:    ExecutionConfig{ExecutablePath: "python"},
			shouldErr: false,
		},
		{
			name:      "relative_path_inside_working_directory",
			config:    ExecutionConfig{ExecutablePath: filepath.Join("venv", "bin", "python"), WorkingDirectory: appDir},
			shouldErr: false,
		},
		{
			name:      "relative_path_missing_from_working_directory",
			config:    ExecutionConfig{ExecutablePath: filepath.Join("venv", "bin", "python"), WorkingDirectory: workDir},
			shouldErr: true,
		},
		{
			name:      "empty_executable",
			config:    ExecutionConfig{},
			shouldErr: true,
		},
		{
			name:      "missing_executable_path",
			config:    ExecutionConfig{ExecutablePath: "/nonexistent/bin/python"},
			shouldErr: true,
		},
		{
			name:      "relative_working_directory",
			config:    ExecutionConfig{ExecutablePath: "python", WorkingDirectory: "app"},
			shouldErr: true,
		},
		{
			name:      "working_directory_is_file",
			config:    ExecutionConfig{ExecutablePath: "python", WorkingDirectory: notADir},
			shouldErr: true,
		},
		{
			name:      "bad_environment",
			config:    ExecutionConfig{ExecutablePath: "python", Environment: []string{"NOVALUE"}},
			shouldErr: true,
		},
		{
			name:      "environment_without_key",
			config:    ExecutionConfig{ExecutablePath: "python", Environment: []string{"=x"}},
			shouldErr: true,
		},
		{
			name:      "negative_wait_delay",
			config:    ExecutionConfig{ExecutablePath: "python", WaitDelay: -time.Second},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionConfig(tt.config)
			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergeEnvironment(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root", "PYTHONUNBUFFERED=0"}

	assert.Equal(t, base, MergeEnvironment(base, nil))

	merged := MergeEnvironment(base, []string{"PYTHONUNBUFFERED=1", "DJANGO_SETTINGS_MODULE=mwonya_core.settings"})
	assert.Equal(t, []string{
		"PATH=/usr/bin",
		"HOME=/root",
		"PYTHONUNBUFFERED=1",
		"DJANGO_SETTINGS_MODULE=mwonya_core.settings",
	}, merged)
}

func TestExecutionConfig_CommandLine(t *testing.T) {
	config := ExecutionConfig{ExecutablePath: "python", Args: []string{"manage.py", "migrate", "--noinput"}}
	assert.Equal(t, "python manage.py migrate --noinput", config.CommandLine())
}
