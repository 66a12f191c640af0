package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/preflight"
	"github.com/mwonya/entrypoint/pkg/provision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinVariants(t *testing.T) {
	tests := []struct {
		variant string
		module  string
		bind    string
	}{
		{VariantCore, "mwonya_core.wsgi:application", "0.0.0.0:8200"},
		{VariantStudio, "mwonya_studio.wsgi:application", "0.0.0.0:6200"},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			deployment, err := Builtin(tt.variant)
			require.NoError(t, err)
			require.NoError(t, Validate(deployment))

			launch := deployment.Launch()
			assert.Equal(t, tt.module, launch.Module)
			assert.Equal(t, tt.bind, launch.BindAddress())
			assert.Equal(t, 3, launch.Workers)
			assert.Equal(t, "-", launch.AccessLog)
			assert.Equal(t, "-", launch.ErrorLog)
			assert.Equal(t, "gunicorn", launch.Executable)
		})
	}
}

func TestBuiltin_ReturnsIndependentCopies(t *testing.T) {
	first, err := Builtin(VariantCore)
	require.NoError(t, err)
	first.Server.Port = 1

	second, err := Builtin(VariantCore)
	require.NoError(t, err)
	assert.Equal(t, 8200, second.Server.Port)
}

func TestBuiltin_Unknown(t *testing.T) {
	_, err := Builtin("tenant-x")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []string{"core", "studio"}, Variants())
}

func TestDeployment_Steps(t *testing.T) {
	deployment, err := Builtin(VariantCore)
	require.NoError(t, err)

	steps := deployment.Steps()
	require.Len(t, steps, 2)

	assert.Equal(t, "collectstatic", steps[0].Name)
	assert.Equal(t, provision.FailureAssetCollection, steps[0].Failure)
	assert.Equal(t, "python manage.py collectstatic --noinput", steps[0].Execution.CommandLine())

	assert.Equal(t, "migrate", steps[1].Name)
	assert.Equal(t, provision.FailureMigration, steps[1].Failure)
	assert.Equal(t, "python manage.py migrate --noinput", steps[1].Execution.CommandLine())
}

func TestApplyOverlay(t *testing.T) {
	appDir := t.TempDir()
	base, err := Builtin(VariantStudio)
	require.NoError(t, err)

	overlay := `
python: /usr/local/bin/python3
app_directory: "` + filepath.ToSlash(appDir) + `"
environment: ["DJANGO_SETTINGS_MODULE=mwonya_core.settings"]
server:
  extra_args: ["--timeout", "120"]
logging:
  level: debug
  format: json
pid_file: /run/mwonya/studio.pid
database_check:
  driver: postgres
  timeout: 3s
`

	deployment, err := ApplyOverlay([]byte(overlay), base)
	require.NoError(t, err)

	assert.Equal(t, VariantStudio, deployment.Variant)
	assert.Equal(t, "/usr/local/bin/python3", deployment.Python)
	assert.Equal(t, "manage.py", deployment.ManageScript)
	assert.Equal(t, 6200, deployment.Server.Port)
	assert.Equal(t, "mwonya_studio.wsgi:application", deployment.Server.Module)
	assert.Equal(t, 3, deployment.Server.Workers)
	assert.Equal(t, []string{"--timeout", "120"}, deployment.Server.ExtraArgs)
	assert.Equal(t, "debug", deployment.Logging.Level)
	assert.Equal(t, "json", deployment.Logging.Format)
	assert.Equal(t, "/run/mwonya/studio.pid", deployment.PIDFile)

	require.NotNil(t, deployment.Database)
	assert.Equal(t, preflight.DriverPostgres, deployment.Database.Driver)
	assert.Equal(t, 3*time.Second, deployment.Database.Timeout)
	assert.Equal(t, preflight.DefaultDSNEnv, deployment.Database.DSNEnv)

	launch := deployment.Launch()
	assert.Equal(t, filepath.ToSlash(appDir), filepath.ToSlash(launch.WorkingDirectory))
	assert.Equal(t, []string{"DJANGO_SETTINGS_MODULE=mwonya_core.settings"}, launch.Environment)

	steps := deployment.Steps()
	assert.Equal(t, "/usr/local/bin/python3", steps[0].Execution.ExecutablePath)
	assert.Equal(t, deployment.AppDirectory, steps[1].Execution.WorkingDirectory)

	// base untouched
	assert.Equal(t, "python", base.Python)
	assert.Nil(t, base.Database)
}

func TestApplyOverlay_Errors(t *testing.T) {
	base, err := Builtin(VariantCore)
	require.NoError(t, err)

	_, err = ApplyOverlay([]byte("server: [unclosed"), base)
	assert.True(t, errors.IsValidationError(err))

	_, err = ApplyOverlay([]byte("variant: studio\n"), base)
	assert.True(t, errors.IsValidationError(err))

	_, err = ApplyOverlay([]byte("python: x\n"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestDeployment_LaunchEnvironmentServerWins(t *testing.T) {
	base, err := Builtin(VariantCore)
	require.NoError(t, err)

	overlay := `
environment: ["DJANGO_SETTINGS_MODULE=mwonya_core.settings", "TZ=UTC"]
server:
  environment: ["DJANGO_SETTINGS_MODULE=mwonya_core.settings_web"]
`
	deployment, err := ApplyOverlay([]byte(overlay), base)
	require.NoError(t, err)

	assert.Equal(t, []string{"TZ=UTC", "DJANGO_SETTINGS_MODULE=mwonya_core.settings_web"}, deployment.Launch().Environment)
	// steps keep the deployment-wide value
	assert.Equal(t, []string{"DJANGO_SETTINGS_MODULE=mwonya_core.settings", "TZ=UTC"}, deployment.Steps()[1].Execution.Environment)
}

func TestLoadOverlay(t *testing.T) {
	base, err := Builtin(VariantCore)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "entrypoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  workers: 5\n"), 0644))

	deployment, err := LoadOverlay(path, base)
	require.NoError(t, err)
	assert.Equal(t, 5, deployment.Launch().Workers)
	assert.Equal(t, 8200, deployment.Launch().Port)

	_, err = LoadOverlay(filepath.Join(t.TempDir(), "missing.yaml"), base)
	assert.True(t, errors.IsIOError(err))

	_, err = LoadOverlay(path, nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deployment)
	}{
		{"missing variant", func(d *Deployment) { d.Variant = "" }},
		{"relative app directory", func(d *Deployment) { d.AppDirectory = "app" }},
		{"bad port", func(d *Deployment) { d.Server.Port = 0 }},
		{"negative workers", func(d *Deployment) { d.Server.Workers = -1 }},
		{"bad log level", func(d *Deployment) { d.Logging.Level = "trace" }},
		{"bad log format", func(d *Deployment) { d.Logging.Format = "xml" }},
		{"relative pid file", func(d *Deployment) { d.PIDFile = "server.pid" }},
		{"bad database driver", func(d *Deployment) { d.Database = &preflight.DatabaseCheck{Driver: "mssql"} }},
		{"missing python", func(d *Deployment) { d.Python = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deployment, err := Builtin(VariantCore)
			require.NoError(t, err)
			tt.mutate(deployment)

			err = Validate(deployment)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}

	assert.Error(t, Validate(nil))
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	deployment, err := Builtin(VariantCore)
	require.NoError(t, err)
	deployment.Server.Port = 0
	deployment.PIDFile = "relative.pid"

	err = Validate(deployment)
	require.Error(t, err)

	domainErr, ok := err.(*errors.DomainError)
	require.True(t, ok)
	collection, ok := domainErr.Cause.(*errors.ErrorCollection)
	require.True(t, ok)
	assert.Len(t, collection.Errors, 2)
}

func TestSummary(t *testing.T) {
	deployment, err := Builtin(VariantCore)
	require.NoError(t, err)
	deployment.Database = &preflight.DatabaseCheck{Driver: "mysql"}

	summary := Summary(deployment)

	assert.Equal(t, "core", summary.Variant)
	assert.Equal(t, "0.0.0.0:8200", summary.BindAddress)
	assert.Equal(t, 3, summary.Workers)
	assert.Equal(t, "mysql", summary.DatabaseCheck)
	require.Len(t, summary.Steps, 2)
	assert.Equal(t, "static asset collection", summary.Steps[0].Label)
	assert.Equal(t, []string{
		"gunicorn", "mwonya_core.wsgi:application",
		"--bind", "0.0.0.0:8200",
		"--workers", "3",
		"--access-logfile", "-",
		"--error-logfile", "-",
	}, summary.Server)

	data, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bind_address":"0.0.0.0:8200"`)
	assert.NotContains(t, string(data), "pid_file")
}

func TestApplyOverlay_EnvFile(t *testing.T) {
	base, err := Builtin(VariantCore)
	require.NoError(t, err)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"# deployment secrets\nDATABASE_URL=postgres://db/mwonya\nDJANGO_DEBUG=1\n"), 0644))

	overlay := "env_file: " + filepath.ToSlash(envFile) + "\nenvironment: [\"DJANGO_DEBUG=0\"]\n"

	deployment, err := ApplyOverlay([]byte(overlay), base)
	require.NoError(t, err)

	assert.Equal(t, []string{"DATABASE_URL=postgres://db/mwonya", "DJANGO_DEBUG=0"}, deployment.Environment)
	assert.Equal(t, deployment.Environment, deployment.Steps()[1].Execution.Environment)

	_, err = ApplyOverlay([]byte("env_file: "+filepath.ToSlash(filepath.Join(t.TempDir(), "missing.env"))+"\n"), base)
	assert.True(t, errors.IsIOError(err))
}

func TestValidate_MessageNamesEveryProblem(t *testing.T) {
	deployment, err := Builtin(VariantCore)
	require.NoError(t, err)
	deployment.Server.Port = 0
	deployment.Logging.Format = "xml"

	err = Validate(deployment)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "unsupported log format: xml")
}
