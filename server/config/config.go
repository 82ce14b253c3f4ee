// Package config declares the configuration surface of the loom
// background-processing subsystem and loads it from flags, environment
// variables and an optional yaml file, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "LOOM"

// MysqlConfig defines configs related to MySQL.
type MysqlConfig struct {
	Protocol        string
	Address         string
	Username        string
	Password        string
	Database        string
	MaxOpenConns    int `yaml:"max_open_conns"`
	MaxIdleConns    int `yaml:"max_idle_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// EngineConfig defines configs related to the platform engine's internal
// API, which the subsystem calls for search, deletions and task actions.
type EngineConfig struct {
	Address string
	Token   string
	Timeout time.Duration
}

// LoggingConfig defines configs related to logging.
type LoggingConfig struct {
	Debug bool
	JSON  bool
}

// MetricsConfig defines configs related to the Prometheus exposition
// endpoint.
type MetricsConfig struct {
	Address string
}

// RetentionConfig defines configs related to the retention manager.
//
// Enabled and StartEnabled are deliberately independent knobs: Enabled is the
// global feature switch checked before every run, StartEnabled decides
// whether this process instance registers the schedule at all. Operators can
// thus disable execution everywhere while the capability stays deployed, or
// start the schedule only on designated node roles.
type RetentionConfig struct {
	Enabled       bool          `yaml:"enabled"`
	StartEnabled  bool          `yaml:"start_enabled"`
	Interval      time.Duration `yaml:"interval"`
	LockKey       string        `yaml:"lock_key"`
	BatchSize     int           `yaml:"batch_size"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
}

// TasksConfig defines configs related to the background-task runner.
type TasksConfig struct {
	Enabled      bool          `yaml:"enabled"`
	StartEnabled bool          `yaml:"start_enabled"`
	Interval     time.Duration `yaml:"interval"`
	LockKey      string        `yaml:"lock_key"`
}

// LoomConfig stores the application configuration. Each subsystem is
// defined in its own struct, and each key corresponds to a yaml section and
// key (e.g. RetentionConfig.BatchSize is retention.batch_size), a flag
// (--retention_batch_size) and an env var (LOOM_RETENTION_BATCH_SIZE).
type LoomConfig struct {
	Mysql     MysqlConfig
	Engine    EngineConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Retention RetentionConfig
	Tasks     TasksConfig
}

// Manager manages the addition and retrieval of config values for loom
// commands.
type Manager struct {
	viper    *viper.Viper
	command  *cobra.Command
	defaults map[string]interface{}
}

// NewManager initializes a Manager wrapping the provided cobra command. All
// config flags are attached to that command (and inherited by subcommands).
func NewManager(command *cobra.Command) Manager {
	man := Manager{
		viper:    viper.New(),
		command:  command,
		defaults: map[string]interface{}{},
	}
	man.addConfigs()
	return man
}

func (man Manager) addConfigs() {
	// MySQL
	man.addConfigString("mysql.protocol", "tcp", "MySQL server communication protocol (tcp,unix,...)")
	man.addConfigString("mysql.address", "localhost:3306", "MySQL server address (host:port)")
	man.addConfigString("mysql.username", "loom", "MySQL server username")
	man.addConfigString("mysql.password", "", "MySQL server password (prefer env for security)")
	man.addConfigString("mysql.database", "loom", "MySQL database which loom will use")
	man.addConfigInt("mysql.max_open_conns", 50, "MySQL maximum open connection handles")
	man.addConfigInt("mysql.max_idle_conns", 50, "MySQL maximum idle connection handles")
	man.addConfigInt("mysql.conn_max_lifetime", 0, "MySQL maximum amount of time a connection may be reused, in seconds")

	// Engine
	man.addConfigString("engine.address", "http://localhost:4000", "Base URL of the platform engine's internal API")
	man.addConfigString("engine.token", "", "Bearer token for the engine's internal API (prefer env for security)")
	man.addConfigDuration("engine.timeout", 30*time.Second, "Timeout for engine API requests")

	// Logging
	man.addConfigBool("logging.debug", false, "Enable debug logging")
	man.addConfigBool("logging.json", false, "Log in JSON format")

	// Metrics
	man.addConfigString("metrics.address", "", "Address to serve Prometheus metrics on (empty: disabled)")

	// Retention manager
	man.addConfigBool("retention.enabled", true, "Enable the retention manager")
	man.addConfigBool("retention.start_enabled", true, "Start the retention schedule on this instance")
	man.addConfigDuration("retention.interval", 60*time.Second, "Interval between retention cycles")
	man.addConfigString("retention.lock_key", "retention_manager", "Name of the retention manager's distributed lock")
	man.addConfigInt("retention.batch_size", 100, "Maximum elements deleted per rule per cycle")
	man.addConfigDuration("retention.lease_duration", 0, "Lease duration requested on the retention lock (0: the interval)")

	// Background-task runner
	man.addConfigBool("tasks.enabled", true, "Enable the background-task runner")
	man.addConfigBool("tasks.start_enabled", true, "Start the task-runner schedule on this instance")
	man.addConfigDuration("tasks.interval", 60*time.Second, "Interval between task-runner cycles")
	man.addConfigString("tasks.lock_key", "task_runner", "Name of the task runner's distributed lock")
}

// LoadConfig will load the config variables into a fully initialized
// LoomConfig struct.
func (man Manager) LoadConfig() LoomConfig {
	man.loadConfigFile()

	return LoomConfig{
		Mysql: MysqlConfig{
			Protocol:        man.getConfigString("mysql.protocol"),
			Address:         man.getConfigString("mysql.address"),
			Username:        man.getConfigString("mysql.username"),
			Password:        man.getConfigString("mysql.password"),
			Database:        man.getConfigString("mysql.database"),
			MaxOpenConns:    man.getConfigInt("mysql.max_open_conns"),
			MaxIdleConns:    man.getConfigInt("mysql.max_idle_conns"),
			ConnMaxLifetime: man.getConfigInt("mysql.conn_max_lifetime"),
		},
		Engine: EngineConfig{
			Address: man.getConfigString("engine.address"),
			Token:   man.getConfigString("engine.token"),
			Timeout: man.getConfigDuration("engine.timeout"),
		},
		Logging: LoggingConfig{
			Debug: man.getConfigBool("logging.debug"),
			JSON:  man.getConfigBool("logging.json"),
		},
		Metrics: MetricsConfig{
			Address: man.getConfigString("metrics.address"),
		},
		Retention: RetentionConfig{
			Enabled:       man.getConfigBool("retention.enabled"),
			StartEnabled:  man.getConfigBool("retention.start_enabled"),
			Interval:      man.getConfigDuration("retention.interval"),
			LockKey:       man.getConfigString("retention.lock_key"),
			BatchSize:     man.getConfigInt("retention.batch_size"),
			LeaseDuration: man.getConfigDuration("retention.lease_duration"),
		},
		Tasks: TasksConfig{
			Enabled:      man.getConfigBool("tasks.enabled"),
			StartEnabled: man.getConfigBool("tasks.start_enabled"),
			Interval:     man.getConfigDuration("tasks.interval"),
			LockKey:      man.getConfigString("tasks.lock_key"),
		},
	}
}

// envNameFromConfigKey converts a config key into the corresponding
// environment variable name.
func envNameFromConfigKey(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.Replace(key, ".", "_", -1))
}

// flagNameFromConfigKey converts a config key into the corresponding flag
// name.
func flagNameFromConfigKey(key string) string {
	return strings.Replace(key, ".", "_", -1)
}

// addDefault will check for duplication, then add a default value to the
// defaults map.
func (man Manager) addDefault(key string, defVal interface{}) {
	if _, exists := man.defaults[key]; exists {
		panic("Trying to add duplicate config for key " + key)
	}
	man.defaults[key] = defVal
}

func getFlagUsage(key string, usage string) string {
	return fmt.Sprintf("Env: %s\n\t\t%s", envNameFromConfigKey(key), usage)
}

// getInterfaceVal returns the config value for key, looking through viper
// (flag, env, config file) and falling back to the registered default.
func (man Manager) getInterfaceVal(key string) interface{} {
	interfaceVal := man.viper.Get(key)
	if interfaceVal == nil {
		var ok bool
		interfaceVal, ok = man.defaults[key]
		if !ok {
			panic("Tried to look up default value for nonexistent config option: " + key)
		}
	}
	return interfaceVal
}

func (man Manager) addConfigString(key, defVal, usage string) {
	man.command.PersistentFlags().String(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))
	man.addDefault(key, defVal)
}

func (man Manager) getConfigString(key string) string {
	return cast.ToString(man.getInterfaceVal(key))
}

func (man Manager) addConfigInt(key string, defVal int, usage string) {
	man.command.PersistentFlags().Int(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))
	man.addDefault(key, defVal)
}

func (man Manager) getConfigInt(key string) int {
	return cast.ToInt(man.getInterfaceVal(key))
}

func (man Manager) addConfigBool(key string, defVal bool, usage string) {
	man.command.PersistentFlags().Bool(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))
	man.addDefault(key, defVal)
}

func (man Manager) getConfigBool(key string) bool {
	return cast.ToBool(man.getInterfaceVal(key))
}

func (man Manager) addConfigDuration(key string, defVal time.Duration, usage string) {
	man.command.PersistentFlags().Duration(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))
	man.addDefault(key, defVal)
}

func (man Manager) getConfigDuration(key string) time.Duration {
	return cast.ToDuration(man.getInterfaceVal(key))
}

func (man Manager) loadConfigFile() {
	man.viper.SetConfigType("yaml")

	configFile := man.command.PersistentFlags().Lookup("config").Value.String()
	if configFile == "" {
		// No config file set, only use configs from env vars/flags/defaults.
		return
	}

	man.viper.SetConfigFile(configFile)
	if err := man.viper.ReadInConfig(); err != nil {
		fmt.Println("Error loading config file:", err)
		os.Exit(1)
	}
}

// TestConfig returns a barebones configuration suitable for use in tests.
// Individual tests may want to override some of the values provided.
func TestConfig() LoomConfig {
	return LoomConfig{
		Logging: LoggingConfig{
			Debug: true,
		},
		Retention: RetentionConfig{
			Enabled:      true,
			StartEnabled: true,
			Interval:     60 * time.Second,
			LockKey:      "retention_manager",
			BatchSize:    100,
		},
		Tasks: TasksConfig{
			Enabled:      true,
			StartEnabled: true,
			Interval:     60 * time.Second,
			LockKey:      "task_runner",
		},
	}
}
