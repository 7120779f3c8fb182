// Package config loads and validates the settings needed to run an
// association requestor or acceptor: AE titles, PDU/timeout limits, and
// presentation context proposals. Values are read from a YAML file, then
// overridden by ULP_-prefixed environment variables, then validated before
// an assoc.Config is derived from them (ToAssocConfig) or the server
// settings are used.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/dicomkit/ulp/assoc"
	"github.com/dicomkit/ulp/types"
)

// ProposalConfig is one presentation context to propose, as read from
// configuration.
type ProposalConfig struct {
	AbstractSyntax   string   `mapstructure:"abstract_syntax" validate:"required"`
	TransferSyntaxes []string `mapstructure:"transfer_syntaxes" validate:"required,min=1,dive,required"`
}

// UserIdentityConfig is the on-disk/environment shape of a requestor's User
// Identity negotiation offer (PS3.8 §9.3.2/Annex D). Type selects which of
// Username/Passcode is meaningful: "username" uses only Username,
// "username_passcode" uses both, and "kerberos"/"saml"/"jwt" carry their
// token in Username instead (Passcode is ignored for those).
type UserIdentityConfig struct {
	Type                      string `mapstructure:"type" validate:"omitempty,oneof=username username_passcode kerberos saml jwt"`
	Username                  string `mapstructure:"username"`
	Passcode                  string `mapstructure:"passcode"`
	PositiveResponseRequested bool   `mapstructure:"positive_response_requested"`
}

// AssociationConfig is the on-disk/environment shape of assoc.Config.
type AssociationConfig struct {
	CallingAETitle string              `mapstructure:"calling_ae_title" validate:"required,max=16"`
	CalledAETitle  string              `mapstructure:"called_ae_title" validate:"required,max=16"`
	MaxPDULength   uint32              `mapstructure:"max_pdu_length" validate:"omitempty,min=4096"`
	Proposals      []ProposalConfig    `mapstructure:"proposals" validate:"required,min=1,dive"`
	ConnectTimeout time.Duration       `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration       `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration       `mapstructure:"write_timeout"`
	ReleaseTimeout time.Duration       `mapstructure:"release_timeout"`
	UserIdentity   *UserIdentityConfig `mapstructure:"user_identity" validate:"omitempty"`
}

// ServerConfig is the on-disk/environment shape of the acceptor listener.
type ServerConfig struct {
	ListenAddress string        `mapstructure:"listen_address" validate:"required"`
	CalledAETitle string        `mapstructure:"called_ae_title" validate:"required,max=16"`
	MaxPDULength  uint32        `mapstructure:"max_pdu_length" validate:"omitempty,min=4096"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MetricsAddr   string        `mapstructure:"metrics_address"`
}

var validate = validator.New()

// Load reads AssociationConfig from a YAML file at path (if path is
// non-empty) and ULP_ environment variables, applies defaults, and
// validates the result.
func Load(path string) (*AssociationConfig, error) {
	v := newViper(path)
	if err := readIfPresent(v); err != nil {
		return nil, err
	}

	var cfg AssociationConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyAssociationDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadServer reads ServerConfig the same way Load reads AssociationConfig.
func LoadServer(path string) (*ServerConfig, error) {
	v := newViper(path)
	if err := readIfPresent(v); err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyServerDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ULP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// readIfPresent reads the configured file into v, if one was set via
// SetConfigFile. A missing file is not an error — ULP_-prefixed
// environment variables and defaults still apply.
func readIfPresent(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("config: read: %w", err)
	}
	return nil
}

func applyAssociationDefaults(cfg *AssociationConfig) {
	if cfg.MaxPDULength == 0 {
		cfg.MaxPDULength = 16384
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 60 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ReleaseTimeout == 0 {
		cfg.ReleaseTimeout = 10 * time.Second
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.MaxPDULength == 0 {
		cfg.MaxPDULength = 16384
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
}

// ToAssocConfig converts a validated AssociationConfig into the
// assoc.Config the negotiation driver actually consumes.
func (c *AssociationConfig) ToAssocConfig() assoc.Config {
	proposals := make([]assoc.Proposal, len(c.Proposals))
	for i, p := range c.Proposals {
		proposals[i] = assoc.Proposal{
			AbstractSyntax:   p.AbstractSyntax,
			TransferSyntaxes: p.TransferSyntaxes,
		}
	}
	return assoc.Config{
		CallingAETitle: types.AET(c.CallingAETitle),
		CalledAETitle:  types.AET(c.CalledAETitle),
		MaxPDULength:   c.MaxPDULength,
		Proposals:      proposals,
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		ReleaseTimeout: c.ReleaseTimeout,
		UserIdentity:   c.UserIdentity.toUserIdentity(),
	}
}

// userIdentityTypes maps a config file's human-readable type name to the
// wire-level PS3.8 Annex D identity type.
var userIdentityTypes = map[string]types.UserIdentityType{
	"username":          types.UserIdentityUsername,
	"username_passcode": types.UserIdentityUsernamePasscode,
	"kerberos":          types.UserIdentityKerberos,
	"saml":              types.UserIdentitySAML,
	"jwt":               types.UserIdentityJWT,
}

func (c *UserIdentityConfig) toUserIdentity() *types.UserIdentity {
	if c == nil || c.Type == "" {
		return nil
	}
	identity := &types.UserIdentity{
		Type:                      userIdentityTypes[c.Type],
		PrimaryField:              []byte(c.Username),
		PositiveResponseRequested: c.PositiveResponseRequested,
	}
	if identity.Type == types.UserIdentityUsernamePasscode {
		identity.SecondaryField = []byte(c.Passcode)
	}
	return identity
}
