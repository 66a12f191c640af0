package monitoring

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mwonya/entrypoint/pkg/logging"
	"github.com/mwonya/entrypoint/pkg/processfile"
	"github.com/mwonya/entrypoint/pkg/processstate"
)

type ProbeType string

const (
	ProbeTypeTCP     ProbeType = "tcp"
	ProbeTypeHTTP    ProbeType = "http"
	ProbeTypeProcess ProbeType = "process"
)

const DefaultProbeTimeout = 3 * time.Second

type HTTPProbeConfig struct {
	Path    string            `yaml:"path"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type ProbeConfig struct {
	Type    ProbeType     `yaml:"type"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// HTTP probe
	HTTP HTTPProbeConfig `yaml:"http,omitempty"`

	// Process probe
	PIDFile string `yaml:"pid_file,omitempty"`
}

// Address returns host:port of the probed server
func (c ProbeConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type ProbeStatus string

const (
	ProbeStatusReady    ProbeStatus = "ready"
	ProbeStatusNotReady ProbeStatus = "not_ready"
)

// Result is the outcome of a single probe
type Result struct {
	Status   ProbeStatus
	Message  string
	Duration time.Duration
}

func (r Result) Ready() bool {
	return r.Status == ProbeStatusReady
}

// Probe performs one readiness check. It never retries; callers such as
// a container HEALTHCHECK own the retry policy.
func Probe(ctx context.Context, config ProbeConfig, logger logging.Logger) Result {
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	start := time.Now()
	var ready bool
	var message string

	switch config.Type {
	case ProbeTypeTCP:
		ready, message = checkTCP(ctx, config, logger)
	case ProbeTypeHTTP:
		ready, message = checkHTTP(ctx, config, logger)
	case ProbeTypeProcess:
		ready, message = checkProcess(config, logger)
	default:
		ready, message = false, fmt.Sprintf("Unsupported probe type: %s", config.Type)
	}

	result := Result{
		Status:   ProbeStatusNotReady,
		Message:  message,
		Duration: time.Since(start),
	}
	if ready {
		result.Status = ProbeStatusReady
	}

	logger.Debugf("Probe finished, type: %s, status: %s, duration: %v, message: %s",
		config.Type, result.Status, result.Duration, result.Message)
	return result
}

func checkTCP(ctx context.Context, config ProbeConfig, logger logging.Logger) (bool, string) {
	address := config.Address()
	logger.Debugf("Performing TCP probe, address: %s", address)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	defer conn.Close()

	return true, fmt.Sprintf("TCP connection successful to %s", address)
}

func checkHTTP(ctx context.Context, config ProbeConfig, logger logging.Logger) (bool, string) {
	path := config.HTTP.Path
	if path == "" {
		path = "/"
	}
	url := "http://" + config.Address() + path
	logger.Debugf("Performing HTTP probe, url: %s", url)

	method := config.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, fmt.Sprintf("Failed to create HTTP request: %v", err)
	}
	for key, value := range config.HTTP.Headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	// Consider 2xx status codes as ready
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, fmt.Sprintf("HTTP probe passed: %s", resp.Status)
	}

	return false, fmt.Sprintf("HTTP probe failed: %s", resp.Status)
}

func checkProcess(config ProbeConfig, logger logging.Logger) (bool, string) {
	logger.Debugf("Performing process probe, pid_file: %s", config.PIDFile)

	pid, err := processfile.ReadPIDFile(config.PIDFile)
	if err != nil {
		return false, fmt.Sprintf("Failed to read PID file: %v", err)
	}

	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		return false, fmt.Sprintf("Failed to check process: %v", err)
	}
	if !running {
		return false, fmt.Sprintf("Process not running: PID %d", pid)
	}

	return true, fmt.Sprintf("Process is running: PID %d", pid)
}
