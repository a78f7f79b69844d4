package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		if err != nil {
			t.Fatalf("find %v: %v", path, err)
		}
		if len(rest) != 0 {
			t.Errorf("find %v left args %v", path, rest)
		}
		if want := path[len(path)-1]; cmd.Name() != want {
			t.Errorf("command name = %q, want %q", cmd.Name(), want)
		}
	}

	flag := serveCmd.Flags().Lookup("memory")
	if flag == nil {
		t.Fatal("serve has no --memory flag")
	}
	if flag.DefValue != "false" {
		t.Errorf("--memory default = %q, want false", flag.DefValue)
	}
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("root has no persistent --config flag")
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CONFIG_FILE", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"migrate", "version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error = %v, want mention of DATABASE_URL", err)
	}
}
