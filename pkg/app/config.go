package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gosuri/uitable"
	"github.com/spf13/pflag"

	"github.com/autopeer-io/sensornode/pkg/log"
)

const configFlagName = "config"

func (a *App) addConfigFlag(fs *pflag.FlagSet, name string) {
	fs.StringVarP(&a.cfgFile, configFlagName, "c", a.cfgFile, fmt.Sprintf("Read configuration from the specified file; %s looks for no file when empty.", name))
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// loadConfig layers the config file and the environment under the command line.
// Flags set explicitly win over the file, which wins over flag defaults.
func (a *App) loadConfig(fs *pflag.FlagSet) error {
	v := a.v
	v.SetEnvPrefix(envPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	path := a.cfgFile
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if a.watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			level := v.GetString("log.level")
			if err := log.SetLevel(level); err != nil {
				log.Error(err, "Ignoring log level from changed config file", "file", e.Name)
				return
			}
			log.Info("Config file changed, log level applied", "file", e.Name, "level", level)
		})
		v.WatchConfig()
	}
	return nil
}

// printFlags writes the effective value of every flag. Secrets are masked.
func printFlags(w io.Writer, fs *pflag.FlagSet) {
	table := uitable.New()
	table.Separator = " "
	table.MaxColWidth = 80
	table.RightAlign(0)

	fs.VisitAll(func(f *pflag.Flag) {
		value := f.Value.String()
		if isSecret(f.Name) && value != "" {
			value = "******"
		}
		table.AddRow(fmt.Sprintf("--%s:", f.Name), value)
	})
	fmt.Fprintln(w, table)
}

func isSecret(name string) bool {
	return strings.Contains(name, "password") || strings.Contains(name, "secret")
}
