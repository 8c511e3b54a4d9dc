package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/leftmike/pkbench/config"
)

func TestFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test_flags", pflag.ContinueOnError)
	cfg := config.NewConfig(fs)
	b := cfg.Var(new(bool), "bool").Usage("bool variable").Bool(false)
	i := cfg.Var(new(int), "int").Usage("int variable").Short("i").Int(123)
	s := cfg.Var(new(string), "string").String("default")
	d := cfg.Var(new(time.Duration), "duration").Duration(time.Second)
	if *b != false || *i != 123 || *s != "default" || *d != time.Second {
		t.Errorf("NewConfig() defaults not correctly set")
	}

	err := fs.Parse([]string{"--bool", "-i", "456", "--duration=1m"})
	if err != nil {
		t.Fatalf("Parse() failed with %s", err)
	}
	if *b != true {
		t.Errorf("*b != true")
	}
	if *i != 456 {
		t.Errorf("*i != 456")
	}
	if *s != "default" {
		t.Errorf("*s != \"default\"")
	}
	if *d != time.Minute {
		t.Errorf("*d != time.Minute")
	}
	if fs.Lookup("int").Usage != "int variable" {
		t.Errorf("Lookup(int) got usage %q", fs.Lookup("int").Usage)
	}
}

func TestEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test_flags", pflag.ContinueOnError)
	cfg := config.NewConfig(fs)
	b := cfg.Var(new(bool), "bool").Env("X_BOOL").Usage("bool variable").Bool(true)
	i := cfg.Var(new(int), "int").Usage("int variable").Env("X_INT").Int(123)
	s := cfg.Var(new(string), "string").Usage("string variable").Env("X_STRING").String("default")
	if fs.Lookup("int").Usage != "int variable (env X_INT)" {
		t.Errorf("Lookup(int) got usage %q", fs.Lookup("int").Usage)
	}

	t.Setenv("X_BOOL", "true")
	t.Setenv("X_INT", "789")
	t.Setenv("X_STRING", "from environment")
	err := fs.Parse([]string{"--bool=false", "--int", "456"})
	if err != nil {
		t.Fatalf("Parse() failed with %s", err)
	}
	err = cfg.Env()
	if err != nil {
		t.Errorf("Env() failed with %s", err)
	}
	if *b != false {
		t.Errorf("*b != false")
	}
	if *i != 456 {
		t.Errorf("*i != 456")
	}
	if *s != "from environment" {
		t.Errorf("*s != \"from environment\"")
	}
	if !cfg.IsSet("string") || !cfg.IsSet("int") {
		t.Errorf("IsSet() got false want true")
	}

	fs = pflag.NewFlagSet("test_flags", pflag.ContinueOnError)
	cfg = config.NewConfig(fs)
	cfg.Var(new(int), "int").Env("X_INT").Int(0)
	t.Setenv("X_INT", "not a number")
	err = cfg.Env()
	if err == nil {
		t.Errorf("Env(X_INT=not a number) did not fail")
	}
}

func writeFile(t *testing.T, nam, s string) string {
	t.Helper()

	filename := filepath.Join(t.TempDir(), nam)
	err := os.WriteFile(filename, []byte(s), 0644)
	if err != nil {
		t.Fatalf("WriteFile(%s) failed with %s", filename, err)
	}
	return filename
}

func TestLoadSettings(t *testing.T) {
	fs := pflag.NewFlagSet("test_settings", pflag.ContinueOnError)
	cfg := config.NewConfig(fs)
	cfg.Var(new(string), "driver").Env("X_DRIVER").String("postgres")
	cfg.Var(new(string), "password").Env("X_PASSWORD").Secret().String("")
	port := cfg.Var(new(int), "port").Int(5432)
	cfg.Var(new(string), "user").String("")
	cfg.Var(new(string), "host").String("localhost")

	t.Setenv("X_DRIVER", "mysql")
	err := fs.Parse([]string{"--user", "bench"})
	if err != nil {
		t.Fatalf("Parse() failed with %s", err)
	}
	err = cfg.Env()
	if err != nil {
		t.Fatalf("Env() failed with %s", err)
	}

	filename := writeFile(t, "pkbench.hcl", `
driver = "sqlite3"
password = "secret"
port = 3306
user = "ignored"
`)
	err = cfg.Load(filename)
	if err != nil {
		t.Fatalf("Load(%s) failed with %s", filename, err)
	}
	if *port != 3306 {
		t.Errorf("Load() got port %d want 3306", *port)
	}

	settings := cfg.Settings()
	want := []config.Setting{
		{Name: "driver", By: "environment", Value: "mysql"},
		{Name: "host", By: "default", Value: "localhost"},
		{Name: "password", By: "config", Value: "********"},
		{Name: "port", By: "config", Value: "3306"},
		{Name: "user", By: "flag", Value: "bench"},
	}
	if !reflect.DeepEqual(settings, want) {
		t.Errorf("Settings() got %v want %v", settings, want)
	}

	err = cfg.Load(filepath.Join(t.TempDir(), "missing.hcl"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) got %v want not exist", err)
	}
	err = cfg.Load(writeFile(t, "bad.hcl", `unknown = 1`))
	if err == nil {
		t.Errorf("Load(unknown variable) did not fail")
	}
}

func TestLoadEnvFile(t *testing.T) {
	filename := writeFile(t, ".env", "PKBENCH_TEST_USER=bench\nPKBENCH_TEST_HOST=db.example.com\n")
	t.Setenv("PKBENCH_TEST_HOST", "already.set")
	t.Setenv("PKBENCH_TEST_USER", "")
	os.Unsetenv("PKBENCH_TEST_USER")

	err := config.LoadEnvFile(filename, true)
	if err != nil {
		t.Fatalf("LoadEnvFile(%s) failed with %s", filename, err)
	}
	if v := os.Getenv("PKBENCH_TEST_USER"); v != "bench" {
		t.Errorf("LoadEnvFile() got PKBENCH_TEST_USER=%s want bench", v)
	}
	if v := os.Getenv("PKBENCH_TEST_HOST"); v != "already.set" {
		t.Errorf("LoadEnvFile() overrode PKBENCH_TEST_HOST: got %s", v)
	}

	missing := filepath.Join(t.TempDir(), ".env")
	err = config.LoadEnvFile(missing, false)
	if err != nil {
		t.Errorf("LoadEnvFile(missing, false) failed with %s", err)
	}
	err = config.LoadEnvFile(missing, true)
	if err == nil {
		t.Errorf("LoadEnvFile(missing, true) did not fail")
	}
}

func TestVisit(t *testing.T) {
	root := pflag.NewFlagSet("root", pflag.ContinueOnError)
	sub := pflag.NewFlagSet("sub", pflag.ContinueOnError)
	cfg := config.NewConfig(root)
	n := cfg.Var(new(int), "iterations").Flags(sub).Env("X_ITERATIONS").Int(10)

	t.Setenv("X_ITERATIONS", "20")
	err := sub.Parse([]string{"--iterations", "30"})
	if err != nil {
		t.Fatalf("Parse() failed with %s", err)
	}
	cfg.Visit(sub)
	err = cfg.Env()
	if err != nil {
		t.Fatalf("Env() failed with %s", err)
	}
	if *n != 30 {
		t.Errorf("Env() overrode a flag: got %d want 30", *n)
	}
	if root.Lookup("iterations") != nil {
		t.Errorf("Lookup(iterations) found the flag in the wrong flag set")
	}
}
