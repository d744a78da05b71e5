package main

import (
	"context"
	"testing"
)

func TestConnectRequiresCredentials(t *testing.T) {
	opts := &rootOptions{server: "http://127.0.0.1:1", logLevel: "error"}
	if _, _, err := opts.connect(context.Background(), opts.logger()); err == nil {
		t.Fatal("expected an error without token or username")
	}
}

func TestConnectReportsLoginFailure(t *testing.T) {
	opts := &rootOptions{server: "http://127.0.0.1:1", username: "ana", password: "x", logLevel: "error"}
	if _, _, err := opts.connect(context.Background(), opts.logger()); err == nil {
		t.Fatal("expected login against a closed port to fail")
	}
}

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"tail", "send"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("subcommand %s not registered: %v", name, err)
		}
	}
}
