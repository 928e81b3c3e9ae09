package cmd

import "testing"

func TestRootCmd_SubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"validate": false, "eval": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q to be registered with rootCmd", name)
		}
	}
}

func TestRootCmd_HasConfigPersistentFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	if flag == nil {
		t.Fatal("expected a persistent --config flag")
	}
	if flag.DefValue != "" {
		t.Errorf("--config default = %q, want empty", flag.DefValue)
	}
}
