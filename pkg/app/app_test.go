package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"
)

type demoOptions struct {
	Name     string        `mapstructure:"name"`
	Interval time.Duration `mapstructure:"interval"`
	Password string        `mapstructure:"password"`
}

func (o *demoOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "demo.name", o.Name, "name")
	fs.DurationVar(&o.Interval, "demo.interval", o.Interval, "interval")
	fs.StringVar(&o.Password, "demo.password", o.Password, "password")
}

type testOptions struct {
	Demo *demoOptions `mapstructure:"demo"`

	completed bool
	invalid   error
}

var _ NamedFlagSetOptions = (*testOptions)(nil)

func newTestOptions() *testOptions {
	return &testOptions{Demo: &demoOptions{Name: "default", Interval: time.Second}}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Demo.AddFlags(fss.FlagSet("demo"))
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	return o.invalid
}

func execute(t *testing.T, opts *testOptions, args []string, extra ...Option) (ran bool, err error) {
	t.Helper()

	all := append([]Option{
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithSilence(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	}, extra...)
	a := NewApp("demo-app", "demo", all...)

	cmd := a.Command()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return ran, cmd.Execute()
}

func TestAppFlags(t *testing.T) {
	opts := newTestOptions()

	ran, err := execute(t, opts, []string{"--demo.name=node", "--demo.interval=5s"})
	require.NoError(t, err)

	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, "node", opts.Demo.Name)
	assert.Equal(t, 5*time.Second, opts.Demo.Interval)
}

func TestAppConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("demo:\n  name: from-file\n  interval: 1m\n"), 0o600))

	opts := newTestOptions()
	_, err := execute(t, opts, []string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "from-file", opts.Demo.Name)
	assert.Equal(t, time.Minute, opts.Demo.Interval)

	opts = newTestOptions()
	_, err = execute(t, opts, []string{"-c", path, "--demo.name=flag"})
	require.NoError(t, err)
	assert.Equal(t, "flag", opts.Demo.Name, "explicit flags win over the file")
	assert.Equal(t, time.Minute, opts.Demo.Interval)
}

func TestAppMissingConfigFile(t *testing.T) {
	ran, err := execute(t, newTestOptions(), []string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestAppEnvironment(t *testing.T) {
	t.Setenv("DEMO_APP_DEMO_NAME", "from-env")

	opts := newTestOptions()
	_, err := execute(t, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", opts.Demo.Name)
}

func TestAppValidateFails(t *testing.T) {
	opts := newTestOptions()
	opts.invalid = errors.New("bad options")

	ran, err := execute(t, opts, nil)
	assert.EqualError(t, err, "bad options")
	assert.False(t, ran)
}

func TestAppRejectsArgs(t *testing.T) {
	ran, err := execute(t, newTestOptions(), []string{"extra"})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestPrintFlagsMasksSecrets(t *testing.T) {
	opts := newTestOptions()
	opts.Demo.Password = "hunter2"
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.Demo.AddFlags(fs)

	var buf bytes.Buffer
	printFlags(&buf, fs)

	out := buf.String()
	assert.Contains(t, out, "--demo.name:")
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "******")
	assert.NotContains(t, out, "hunter2")
}
