package main

import (
	"testing"

	"github.com/spf13/viper"
)

func TestPersistentFlagsBindToViper(t *testing.T) {
	addPersistentFlags()

	flags := rootCmd.PersistentFlags()
	for _, name := range []string{"workspace", "json", "actor-id", "admin", "webhook-url"} {
		if flags.Lookup(name) == nil {
			t.Fatalf("persistent flag %q not registered", name)
		}
	}

	if err := flags.Set("webhook-url", "https://hooks.example.com/sl"); err != nil {
		t.Fatal(err)
	}
	if got := viper.GetString("webhook-url"); got != "https://hooks.example.com/sl" {
		t.Fatalf("webhook-url resolved to %q", got)
	}
}
