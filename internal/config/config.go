// Package config loads the forwarder configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/cradlepoint/sdk-samples-sub000/internal/filter"
	"github.com/cradlepoint/sdk-samples-sub000/internal/gpsgate"
)

var ErrInvalid = errors.New("config: invalid")

const EnvPrefix = "GPSGATE"

type Config struct {
	GpsGateURL       string `mapstructure:"gps_gate_url" validate:"required,hostname|ip"`
	GpsGatePort      int    `mapstructure:"gps_gate_port" validate:"min=1,max=65535"`
	GpsGateTransport string `mapstructure:"gps_gate_transport" validate:"oneof=tcp xml"`

	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	ForceCredentials bool   `mapstructure:"force_credentials"`
	IMEI             string `mapstructure:"imei" validate:"omitempty,numeric"`

	ServerVersion string `mapstructure:"server_version" validate:"required"`
	Client        string `mapstructure:"client" validate:"required"`
	ClientVersion string `mapstructure:"client_version" validate:"required"`

	FilterPolicy string `mapstructure:"filter_policy" validate:"oneof=clamp strict"`
	FixTime      bool   `mapstructure:"fix_time"`

	DialTimeout       time.Duration `mapstructure:"dial_timeout" validate:"min=0"`
	RecvTimeout       time.Duration `mapstructure:"recv_timeout" validate:"gt=0"`
	HandshakeAttempts int           `mapstructure:"handshake_attempts" validate:"min=1"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" validate:"min=0"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`

	GPS    GPSConfig    `mapstructure:"gps"`
	Status StatusConfig `mapstructure:"status"`
	Store  StoreConfig  `mapstructure:"store"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Record RecordConfig `mapstructure:"record"`

	// Filters holds the raw threshold of every filter key present in the
	// configuration. Absent keys are unset.
	Filters map[filter.Kind]string `mapstructure:"-"`
}

type GPSConfig struct {
	Source        string        `mapstructure:"source" validate:"oneof=tcp serial"`
	ListenAddr    string        `mapstructure:"listen_addr" validate:"required_if=Source tcp"`
	ProxyProtocol bool          `mapstructure:"proxy_protocol"`
	Pacing        time.Duration `mapstructure:"pacing" validate:"min=0"`
	SerialPort    string        `mapstructure:"serial_port" validate:"required_if=Source serial"`
	Baud          uint          `mapstructure:"baud" validate:"min=1"`
	ReadSize      int           `mapstructure:"read_size" validate:"min=1"`
}

type StatusConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type StoreConfig struct {
	DbURL    string        `mapstructure:"db_url"`
	Table    string        `mapstructure:"table" validate:"required"`
	BufSize  int           `mapstructure:"buf_size" validate:"min=1"`
	FlushAge time.Duration `mapstructure:"flush_age" validate:"gt=0"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic" validate:"required_with=Broker"`
	ClientID string `mapstructure:"client_id"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject" validate:"required_with=URL"`
}

type RecordConfig struct {
	Path string `mapstructure:"path"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("gps_gate_url", "")
	v.SetDefault("gps_gate_port", 30175)
	v.SetDefault("gps_gate_transport", "tcp")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("force_credentials", false)
	v.SetDefault("imei", "")
	v.SetDefault("server_version", "1.1")
	v.SetDefault("client", "Cradlepoint")
	v.SetDefault("client_version", "1.0")
	v.SetDefault("filter_policy", "clamp")
	v.SetDefault("fix_time", false)
	v.SetDefault("dial_timeout", 10*time.Second)
	v.SetDefault("recv_timeout", 2*time.Second)
	v.SetDefault("handshake_attempts", 5)
	v.SetDefault("reconnect_delay", 10*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("gps.source", "tcp")
	v.SetDefault("gps.listen_addr", ":9999")
	v.SetDefault("gps.proxy_protocol", false)
	v.SetDefault("gps.pacing", time.Second)
	v.SetDefault("gps.serial_port", "")
	v.SetDefault("gps.baud", 9600)
	v.SetDefault("gps.read_size", 1024)

	v.SetDefault("status.listen_addr", "")
	v.SetDefault("store.db_url", "")
	v.SetDefault("store.table", "gps_fix")
	v.SetDefault("store.buf_size", 50)
	v.SetDefault("store.flush_age", 10*time.Second)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "")
	v.SetDefault("mqtt.client_id", "gpsgate-forwarder")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "")
	v.SetDefault("record.path", "")
}

// Load reads path (any format viper understands; empty means defaults and
// environment only) and the GPSGATE_* environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.FilterPolicy = strings.ToLower(cfg.FilterPolicy)
	cfg.GpsGateTransport = strings.ToLower(cfg.GpsGateTransport)
	cfg.Filters = make(map[filter.Kind]string)
	for _, k := range filter.Kinds {
		if v.IsSet(k.Key()) {
			cfg.Filters[k] = v.GetString(k.Key())
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, _, err := gpsgate.ParseVersion(cfg.ServerVersion); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Thresholds builds the initial filter thresholds. Under the strict policy
// an out-of-range value is an error.
func (cfg *Config) Thresholds() (*filter.Thresholds, error) {
	policy, err := filter.ParsePolicy(cfg.FilterPolicy)
	if err != nil {
		return nil, err
	}
	th := filter.NewThresholds(policy)
	for _, k := range filter.Kinds {
		raw, ok := cfg.Filters[k]
		if !ok {
			continue
		}
		if err := th.Set(k, raw); err != nil {
			return nil, err
		}
	}
	return th, nil
}

// SessionConfig maps the login settings; transport and identity are checked
// by gpsgate.NewSession.
func (cfg *Config) SessionConfig() (gpsgate.SessionConfig, error) {
	major, minor, err := gpsgate.ParseVersion(cfg.ServerVersion)
	if err != nil {
		return gpsgate.SessionConfig{}, err
	}
	sc := gpsgate.SessionConfig{
		Transport: cfg.GpsGateTransport,
		Identity: gpsgate.Identity{
			IMEI:             cfg.IMEI,
			Username:         cfg.Username,
			Password:         cfg.Password,
			ForceCredentials: cfg.ForceCredentials,
		},
		Major:         major,
		Minor:         minor,
		Client:        cfg.Client,
		ClientVersion: cfg.ClientVersion,
	}
	return sc, nil
}

func (cfg *Config) Upstream() gpsgate.ClientConfig {
	return gpsgate.ClientConfig{
		Addr:              net.JoinHostPort(cfg.GpsGateURL, strconv.Itoa(cfg.GpsGatePort)),
		DialTimeout:       cfg.DialTimeout,
		RecvTimeout:       cfg.RecvTimeout,
		HandshakeAttempts: cfg.HandshakeAttempts,
	}
}

// Identity names this forwarder in records and events.
func (cfg *Config) Identity() string {
	if cfg.IMEI != "" {
		return cfg.IMEI
	}
	return cfg.Username
}
