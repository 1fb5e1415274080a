// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// testSuffix is appended to identity and room names in test mode so a test
// instance never collides with the production bridge.
const testSuffix = "-test"

// IRCConfig holds the channel-protocol side of the bridge configuration.
type IRCConfig struct {
	Server           string `yaml:"server"`
	Port             int    `yaml:"port"`
	Nick             string `yaml:"nick"`
	Username         string `yaml:"username"`
	Realname         string `yaml:"realname"`
	ServerPassword   string `yaml:"server_password"`
	NickservPassword string `yaml:"nickserv_password"`
	Channel          string `yaml:"channel"`
	// TimeDelay is the liveness probe period in seconds. Every TimeDelay
	// seconds the session sends a server TIME query.
	TimeDelay int `yaml:"time_delay"`
	// ReconnectTimer is the silence window in seconds. If no traffic at all
	// arrives for this long the connection is assumed dead and rebuilt.
	// Must be greater than TimeDelay.
	ReconnectTimer int `yaml:"reconnect_timer"`
}

// XMPPConfig holds the federated-protocol side of the bridge configuration.
type XMPPConfig struct {
	JID      string `yaml:"jid"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Resource string `yaml:"resource"`
	// Room is the JID of the bridged conference room.
	Room string `yaml:"room"`
	// RoomNick is the alias the bridge joins the room under.
	RoomNick string `yaml:"room_nick"`
	// ReconnectDelay is the wait in seconds before rebuilding the
	// connection after a terminal failure.
	ReconnectDelay int  `yaml:"reconnect_delay"`
	NoTLS          bool `yaml:"no_tls"`
}

// RelayConfig holds the relay and command processor knobs.
type RelayConfig struct {
	CommandPrefix string `yaml:"command_prefix"`
	// QuietStatus suppresses relayed presence notices and room-system
	// status lines in both directions.
	QuietStatus bool `yaml:"quiet_status"`
	// LineLimit is the maximum length of an outbound IRC line including
	// the speaker prefix; longer lines are word-wrapped.
	LineLimit int `yaml:"line_limit"`
	// Admin, when set, is the only IRC nick or room alias allowed to use
	// the shutdown command.
	Admin string `yaml:"admin"`
	// StatusFilters are substrings of room-system notices that are dropped
	// instead of relayed. The defaults cover common MUC service phrases,
	// which are server and locale specific.
	StatusFilters []string `yaml:"status_filters"`
}

// Config is the immutable bridge configuration, loaded once at startup.
type Config struct {
	Mode  string      `yaml:"mode"`
	IRC   IRCConfig   `yaml:"irc"`
	XMPP  XMPPConfig  `yaml:"xmpp"`
	Relay RelayConfig `yaml:"bridge"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// defaultStatusFilters match MUC service notices that carry no conversation
// value. Literal text matching is inherently fragile across servers and
// locales, which is why the list is configurable.
var defaultStatusFilters = []string{
	"This room supports the MUC protocol",
	"This room is not anonymous",
	"has set the subject to",
}

// LoadConfig reads, validates and post-processes the configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.PostProcess()
	return &cfg, nil
}

// Validate reports every missing required key and invalid value at once so
// the operator can fix the file in a single pass.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}
	require("irc.server", c.IRC.Server)
	require("irc.nick", c.IRC.Nick)
	require("irc.channel", c.IRC.Channel)
	require("xmpp.jid", c.XMPP.JID)
	require("xmpp.password", c.XMPP.Password)
	require("xmpp.server", c.XMPP.Server)
	require("xmpp.room", c.XMPP.Room)
	require("xmpp.room_nick", c.XMPP.RoomNick)
	if len(missing) > 0 {
		return fmt.Errorf("missing required config keys: %s", strings.Join(missing, ", "))
	}

	switch c.Mode {
	case "", "production", "test":
	default:
		return fmt.Errorf("invalid mode %q (want production or test)", c.Mode)
	}
	if c.IRC.TimeDelay != 0 && c.IRC.ReconnectTimer != 0 && c.IRC.TimeDelay >= c.IRC.ReconnectTimer {
		return fmt.Errorf("irc.time_delay (%d) must be less than irc.reconnect_timer (%d)",
			c.IRC.TimeDelay, c.IRC.ReconnectTimer)
	}
	return nil
}

// PostProcess applies defaults and the test-mode name derivation. It is a
// pure derivation run once at load time, not a runtime toggle.
func (c *Config) PostProcess() {
	if c.Mode == "" {
		c.Mode = "production"
	}
	if c.IRC.Port == 0 {
		c.IRC.Port = 6667
	}
	if c.IRC.Username == "" {
		c.IRC.Username = c.IRC.Nick
	}
	if c.IRC.Realname == "" {
		c.IRC.Realname = "XMPP-IRC bridge"
	}
	if c.IRC.TimeDelay == 0 {
		c.IRC.TimeDelay = 60
	}
	if c.IRC.ReconnectTimer == 0 {
		c.IRC.ReconnectTimer = 180
	}
	if c.XMPP.Port == 0 {
		c.XMPP.Port = 5222
	}
	if c.XMPP.Resource == "" {
		c.XMPP.Resource = "bridge"
	}
	if c.XMPP.ReconnectDelay == 0 {
		c.XMPP.ReconnectDelay = 30
	}
	if c.Relay.CommandPrefix == "" {
		c.Relay.CommandPrefix = "!"
	}
	if c.Relay.LineLimit == 0 {
		c.Relay.LineLimit = 400
	}
	if len(c.Relay.StatusFilters) == 0 {
		c.Relay.StatusFilters = defaultStatusFilters
	}

	if c.Mode == "test" {
		c.IRC.Nick += testSuffix
		c.IRC.Channel += testSuffix
		c.XMPP.Room = suffixJID(c.XMPP.Room, testSuffix)
		c.XMPP.RoomNick += testSuffix
	}
}

// suffixJID appends suffix to the local part of a JID, so that
// "room@conference.example.org" becomes "room-test@conference.example.org".
func suffixJID(jid, suffix string) string {
	local, domain, ok := strings.Cut(jid, "@")
	if !ok {
		return jid + suffix
	}
	return local + suffix + "@" + domain
}

// RoomName returns the local part of the room JID, used to recognize the
// room echoing its own name back as a system notice.
func (c *Config) RoomName() string {
	local, _, _ := strings.Cut(c.XMPP.Room, "@")
	return local
}
