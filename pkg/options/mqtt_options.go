package options

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/crossway/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the MQTT link between vehicles and the arbiter.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	// ReconnectBackoff is the pause between reconnect attempts.
	ReconnectBackoff time.Duration `json:"reconnect-backoff" mapstructure:"reconnect-backoff"`
	SessionExpiry    uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart       bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify disables verification of the broker certificate.
	// Only for bench setups with self-signed certificates.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot prefixes every topic: {TopicRoot}/{segment}/{vehicleID}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:           "tcp://127.0.0.1:1883",
		KeepAlive:        30 * time.Second,
		ConnectTimeout:   5 * time.Second,
		ReconnectBackoff: time.Second,
		SessionExpiry:    60,
		CleanStart:       true,
		TopicRoot:        "crossway/v1",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if u, err := url.Parse(o.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Errorf("invalid mqtt broker url %q", o.Broker))
	}

	if o.TopicRoot == "" || strings.ContainsAny(o.TopicRoot, "+#") {
		errors = append(errors, fmt.Errorf("invalid mqtt topic root %q", o.TopicRoot))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, join(prefixes, "mqtt.broker"), o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, join(prefixes, "mqtt.username"), o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, join(prefixes, "mqtt.password"), o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, join(prefixes, "mqtt.client-id"), o.ClientID, "Explicit Client ID (optional, derived from the vehicle ID when empty).")

	fs.DurationVar(&o.KeepAlive, join(prefixes, "mqtt.keep-alive"), o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, join(prefixes, "mqtt.connect-timeout"), o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.DurationVar(&o.ReconnectBackoff, join(prefixes, "mqtt.reconnect-backoff"), o.ReconnectBackoff, "Pause between reconnect attempts.")
	fs.Uint32Var(&o.SessionExpiry, join(prefixes, "mqtt.session-expiry"), o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, join(prefixes, "mqtt.clean-start"), o.CleanStart, "Start a clean MQTT session on the first connection.")
	fs.BoolVar(&o.InsecureSkipVerify, join(prefixes, "mqtt.insecure-skip-verify"), o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, join(prefixes, "mqtt.topic-root"), o.TopicRoot, "Topic prefix shared by vehicles and the arbiter.")
}

// ToClientConfig converts the options into a client configuration.
func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		ReconnectBackoff:   o.ReconnectBackoff,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
