package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"
)

// Default application name used for the PID file subdirectory
const DefaultAppName = "mwonya-entrypoint"

// AutoPath asks for an OS-appropriate PID file location instead of an explicit path
const AutoPath = "auto"

// ProcessFileConfig holds configuration for PID file placement
type ProcessFileConfig struct {
	// Base directory for PID files. If empty, uses OS-appropriate default
	BaseDirectory string

	// Service context - affects directory selection
	ServiceContext ServiceContext

	// Application name for subdirectory creation
	AppName string

	// Create subdirectory for the app
	UseSubdirectory bool
}

// ServiceContext defines the context in which the entrypoint runs
type ServiceContext string

const (
	// SystemService runs as PID 1 in a container or as a system daemon
	SystemService ServiceContext = "system"

	// UserService runs under an unprivileged user
	UserService ServiceContext = "user"
)

// ProcessFileManager provides PID file path generation, writing and reading
type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

// NewProcessFileManager creates a new process file manager with the given configuration
func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}

	if config.ServiceContext == "" {
		if os.Geteuid() == 0 {
			config.ServiceContext = SystemService
		} else {
			config.ServiceContext = UserService
		}
	}

	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// ResolvePIDFilePath turns a pid_file setting into a concrete path.
// "auto" generates one for id; anything else is used as is.
func (m *ProcessFileManager) ResolvePIDFilePath(setting string, id string) string {
	if setting == AutoPath {
		return m.GeneratePIDFilePath(id)
	}
	return setting
}

// GeneratePIDFilePath generates an appropriate PID file path for the given id
func (m *ProcessFileManager) GeneratePIDFilePath(id string) string {
	baseDir := m.getBaseDirectory()

	if m.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, m.config.AppName)
	}

	return filepath.Join(baseDir, id+".pid")
}

// WritePIDFile writes pid to path, creating the directory when needed
func (m *ProcessFileManager) WritePIDFile(path string, pid int) error {
	m.logger.Debugf("Writing PID file, pid: %d, path: %s", pid, path)

	if err := ValidatePIDFileDirectory(path); err != nil {
		m.logger.Errorf("PID file directory validation failed, path: %s, error: %v", path, err)
		return errors.NewIOError("PID file directory validation failed", err).WithContext("pid_file", path)
	}

	pidContent := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(path, []byte(pidContent), 0644); err != nil {
		m.logger.Errorf("Failed to write PID file, pid: %d, path: %s, error: %v", pid, path, err)
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}

	m.logger.Infof("PID file written successfully, pid: %d, path: %s", pid, path)
	return nil
}

// ReadPIDFile reads a PID from path
func ReadPIDFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, errors.NewValidationError("invalid PID format: "+pidStr, err).WithContext("pid_file", path)
	}
	if pid <= 0 {
		return 0, errors.NewValidationError("PID must be positive: "+pidStr, nil).WithContext("pid_file", path)
	}

	return pid, nil
}

// getBaseDirectory returns the appropriate base directory for PID files
func (m *ProcessFileManager) getBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}

	switch m.config.ServiceContext {
	case UserService:
		return m.getUserServiceDirectory()
	default:
		return m.getSystemServiceDirectory()
	}
}

// getSystemServiceDirectory returns the directory for system services
func (m *ProcessFileManager) getSystemServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return programData

	case "darwin":
		return "/var/run"

	default:
		// Modern standard is /run, with fallback to /var/run
		if _, err := os.Stat("/run"); err == nil {
			return "/run"
		}
		return "/var/run"
	}
}

// getUserServiceDirectory returns the directory for user services
func (m *ProcessFileManager) getUserServiceDirectory() string {
	if runtime.GOOS != "windows" {
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
	}
	return os.TempDir()
}

// ValidatePIDFileDirectory validates that the PID file directory exists and is writable
func ValidatePIDFileDirectory(pidFilePath string) error {
	dir := filepath.Dir(pidFilePath)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
			}
		} else {
			return errors.NewIOError("failed to access PID file directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("PID file path is not a directory", nil).WithContext("path", dir)
	}

	// Check if directory is writable
	testFile := filepath.Join(dir, ".write_test")
	if file, err := os.Create(testFile); err != nil {
		return errors.NewPermissionError("PID file directory is not writable", err).WithContext("directory", dir)
	} else {
		file.Close()
		os.Remove(testFile)
	}

	return nil
}
