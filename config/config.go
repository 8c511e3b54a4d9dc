package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type by int

const (
	byDefault by = iota
	byConfig
	byEnv
	byFlag
)

func (b by) String() string {
	switch b {
	case byDefault:
		return "default"
	case byConfig:
		return "config"
	case byEnv:
		return "environment"
	case byFlag:
		return "flag"
	}
	return fmt.Sprintf("by(%d)", int(b))
}

const masked = "********"

type Config struct {
	fs   *pflag.FlagSet
	vars map[string]*Var
}

type Var struct {
	fs       *pflag.FlagSet
	name     string
	short    string
	usage    string
	env      string
	val      value
	by       by
	noConfig bool
	secret   bool
}

// Setting is the current value of a variable and where it came from.
type Setting struct {
	Name  string `json:"name" yaml:"name"`
	By    string `json:"by" yaml:"by"`
	Value string `json:"value" yaml:"value"`
}

func NewConfig(fs *pflag.FlagSet) *Config {
	return &Config{
		fs:   fs,
		vars: map[string]*Var{},
	}
}

// Var starts the definition of a variable; p must be a pointer to a bool, int,
// string, or time.Duration. The definition is completed by calling the method
// matching its type, which sets the default and adds the flag.
func (c *Config) Var(p interface{}, name string) *Var {
	if _, ok := c.vars[name]; ok {
		panic(fmt.Sprintf("config: variable redefined: %s", name))
	}

	v := &Var{
		fs:   c.fs,
		name: name,
	}
	switch p := p.(type) {
	case *bool:
		v.val = (*boolValue)(p)
	case *int:
		v.val = (*intValue)(p)
	case *string:
		v.val = (*stringValue)(p)
	case *time.Duration:
		v.val = (*durationValue)(p)
	default:
		panic(fmt.Sprintf("config: unexpected variable type: %T", p))
	}
	c.vars[name] = v
	return v
}

// Flags adds the flag for the variable to fs instead of the config's flag set.
func (v *Var) Flags(fs *pflag.FlagSet) *Var {
	v.fs = fs
	return v
}

func (v *Var) Usage(usage string) *Var {
	v.usage = usage
	return v
}

func (v *Var) Short(short string) *Var {
	v.short = short
	return v
}

// Env names an environment variable which sets the variable unless it was
// set by a flag.
func (v *Var) Env(env string) *Var {
	v.env = env
	return v
}

// NoConfig variables can not be set in a config file.
func (v *Var) NoConfig() *Var {
	v.noConfig = true
	return v
}

// Secret variables are masked in Settings.
func (v *Var) Secret() *Var {
	v.secret = true
	return v
}

func (v *Var) flag() {
	usage := v.usage
	if v.env != "" {
		usage = fmt.Sprintf("%s (env %s)", usage, v.env)
	}
	flg := v.fs.VarPF(v.val, v.name, v.short, usage)
	if _, ok := v.val.(*boolValue); ok {
		flg.NoOptDefVal = "true"
	}
}

func (v *Var) Bool(b bool) *bool {
	p := (*bool)(v.val.(*boolValue))
	*p = b
	v.flag()
	return p
}

func (v *Var) Int(i int) *int {
	p := (*int)(v.val.(*intValue))
	*p = i
	v.flag()
	return p
}

func (v *Var) String(s string) *string {
	p := (*string)(v.val.(*stringValue))
	*p = s
	v.flag()
	return p
}

func (v *Var) Duration(d time.Duration) *time.Duration {
	p := (*time.Duration)(v.val.(*durationValue))
	*p = d
	v.flag()
	return p
}

// Visit marks the variables whose flags were set in fs.
func (c *Config) Visit(fs *pflag.FlagSet) {
	fs.Visit(
		func(flg *pflag.Flag) {
			if v, ok := c.vars[flg.Name]; ok {
				v.by = byFlag
			}
		})
}

// Env sets variables from the environment; variables set by flags are left
// alone.
func (c *Config) Env() error {
	c.Visit(c.fs)

	for _, v := range c.vars {
		if v.env == "" || v.by == byFlag {
			continue
		}
		s, ok := os.LookupEnv(v.env)
		if !ok {
			continue
		}
		err := v.val.Set(s)
		if err != nil {
			return fmt.Errorf("config: %s: %s", v.env, err)
		}
		v.by = byEnv
	}
	return nil
}

// Load sets variables still at their defaults from an HCL config file.
func (c *Config) Load(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	err = c.load(f)
	if err != nil {
		return fmt.Errorf("config: %s: %s", filename, err)
	}
	return nil
}

func (c *Config) load(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var cfg map[string]interface{}
	err = hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}

	c.Visit(c.fs)
	for name, val := range cfg {
		v, ok := c.vars[name]
		if !ok {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if v.noConfig {
			return fmt.Errorf("%s can't be set in config file", name)
		}

		if v.by == byDefault {
			err := v.val.SetValue(val)
			if err != nil {
				return fmt.Errorf("%s: %s", v.name, err)
			}
			v.by = byConfig
		}
	}

	return nil
}

// LoadEnvFile adds the variables in a dotenv file to the environment without
// overriding variables already set. A missing file is only an error when
// required.
func LoadEnvFile(filename string, required bool) error {
	err := godotenv.Load(filename)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// IsSet returns true if the variable was set by anything other than its
// default.
func (c *Config) IsSet(name string) bool {
	v, ok := c.vars[name]
	return ok && v.by != byDefault
}

func (c *Config) Settings() []Setting {
	var settings []Setting
	for _, v := range c.vars {
		val := v.val.String()
		if v.secret && val != "" {
			val = masked
		}
		settings = append(settings,
			Setting{
				Name:  v.name,
				By:    v.by.String(),
				Value: val,
			})
	}
	sort.Slice(settings,
		func(i, j int) bool {
			return strings.Compare(settings[i].Name, settings[j].Name) < 0
		})
	return settings
}
