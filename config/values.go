package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/darkhz/btspp/pipe"
	"github.com/darkhz/btspp/stack"
	"github.com/darkhz/btspp/ui/keybindings"
	"github.com/darkhz/btspp/ui/theme"
)

// The default configuration values.
const (
	DefaultName        = appName
	DefaultAuthTimeout = 10 * time.Second
	DefaultBaud        = 115200
	DefaultLogLevel    = "info"
)

// The roles that a configuration can be validated for.
const (
	RoleMaster = "master"
	RoleSlave  = "slave"
)

// Values describes the possible configuration values that a user can
// modify and supply to the application.
type Values struct {
	Name            string            `koanf:"name"`
	Pin             string            `koanf:"pin"`
	Target          string            `koanf:"target"`
	Adapter         string            `koanf:"adapter"`
	PipeSize        int               `koanf:"pipe-size"`
	InquiryDuration int               `koanf:"inquiry-duration"`
	AuthTimeout     time.Duration     `koanf:"auth-timeout"`
	WaitTimeout     time.Duration     `koanf:"wait-timeout"`
	LogLevel        string            `koanf:"log-level"`
	LogFile         string            `koanf:"log-file"`
	Console         bool              `koanf:"console"`
	Bridge          string            `koanf:"bridge"`
	Baud            int               `koanf:"baud"`
	JSON            bool              `koanf:"json"`
	Theme           map[string]string `koanf:"theme"`
	Keybindings     map[string]string `koanf:"keybindings"`

	Level  zapcore.Level            `koanf:"-"`
	Colors theme.Theme              `koanf:"-"`
	Kb     *keybindings.Keybindings `koanf:"-"`
}

// validateValues validates all configuration values, and fills in the defaults.
func (v *Values) validateValues() error {
	for _, validate := range []func() error{
		v.validateName,
		v.validatePin,
		v.validatePipeSize,
		v.validateInquiryDuration,
		v.validateTimeouts,
		v.validateLogLevel,
		v.validateLogFile,
		v.validateBridge,
		v.validateTheme,
		v.validateKeybindings,
	} {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateRole validates the values which the role requires.
func (v *Values) validateRole(role string) error {
	if v.Pin == "" {
		return fmt.Errorf("%s: a PIN must be specified", role)
	}

	switch role {
	case RoleMaster:
		if v.Target == "" {
			return fmt.Errorf("%s: a target device name must be specified", role)
		}

		if len(v.Target) > stack.MaxNameLength {
			return fmt.Errorf("%s: the target name is longer than %d bytes", role, stack.MaxNameLength)
		}

	case RoleSlave:

	default:
		return fmt.Errorf("%s: unknown role", role)
	}

	return nil
}

// validateName validates the local device name.
func (v *Values) validateName() error {
	if v.Name == "" {
		v.Name = DefaultName
	}

	if len(v.Name) > stack.MaxNameLength {
		return fmt.Errorf("the device name is longer than %d bytes", stack.MaxNameLength)
	}

	return nil
}

// validatePin validates the pairing PIN.
func (v *Values) validatePin() error {
	if len(v.Pin) > stack.MaxPinLength {
		return fmt.Errorf("the PIN is longer than %d bytes", stack.MaxPinLength)
	}

	return nil
}

// validatePipeSize validates the capacity of the receive pipe.
func (v *Values) validatePipeSize() error {
	switch {
	case v.PipeSize == 0:
		v.PipeSize = pipe.DefaultCapacity

	case v.PipeSize < 0:
		return fmt.Errorf("pipe-size: %d: The pipe size must be positive", v.PipeSize)
	}

	return nil
}

// validateInquiryDuration validates the inquiry length, in units of 1.28 seconds.
func (v *Values) validateInquiryDuration() error {
	if v.InquiryDuration == 0 {
		v.InquiryDuration = stack.DefaultInquiryLength
	}

	if v.InquiryDuration < 1 || v.InquiryDuration > stack.MaxInquiryLength {
		return fmt.Errorf("inquiry-duration: %d: The duration must be between 1 and %d",
			v.InquiryDuration, stack.MaxInquiryLength,
		)
	}

	return nil
}

// validateTimeouts validates the pairing and connection timeouts.
func (v *Values) validateTimeouts() error {
	if v.AuthTimeout == 0 {
		v.AuthTimeout = DefaultAuthTimeout
	}

	if v.AuthTimeout < 0 || v.WaitTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	return nil
}

// validateLogLevel validates the logging level.
func (v *Values) validateLogLevel() error {
	if v.LogLevel == "" {
		v.LogLevel = DefaultLogLevel
	}

	level, err := zapcore.ParseLevel(v.LogLevel)
	if err != nil {
		return fmt.Errorf("log-level: %w", err)
	}

	v.Level = level

	return nil
}

// validateLogFile validates that the directory of the log file exists.
func (v *Values) validateLogFile() error {
	if v.LogFile == "" {
		return nil
	}

	if stat, err := os.Stat(filepath.Dir(v.LogFile)); err != nil || !stat.IsDir() {
		return fmt.Errorf("%s: Directory is not accessible", filepath.Dir(v.LogFile))
	}

	return nil
}

// validateBridge validates the serial port bridge.
func (v *Values) validateBridge() error {
	if v.Baud == 0 {
		v.Baud = DefaultBaud
	}

	if v.Baud < 0 {
		return fmt.Errorf("baud: %d: The baud rate must be positive", v.Baud)
	}

	if v.Bridge == "" {
		return nil
	}

	if v.Console {
		return fmt.Errorf("the console and the serial bridge cannot be used together")
	}

	if _, err := os.Stat(v.Bridge); err != nil {
		return fmt.Errorf("%s: Serial port is not accessible", v.Bridge)
	}

	return nil
}

// validateTheme validates the console theme.
func (v *Values) validateTheme() error {
	v.Colors = theme.Default()
	if len(v.Theme) == 0 {
		return nil
	}

	return v.Colors.Parse(v.Theme)
}

// validateKeybindings validates the console keybindings.
func (v *Values) validateKeybindings() error {
	v.Kb = keybindings.NewKeybindings()
	if len(v.Keybindings) == 0 {
		return nil
	}

	return v.Kb.Validate(v.Keybindings)
}
