package config

import (
	"errors"
	"testing"
)

func TestResolveProfile(t *testing.T) {
	t.Run("paper is the default mode", func(t *testing.T) {
		k := Kiwoom{
			Paper: KiwoomProfile{AppKey: "pk", AppSecret: "ps", HostURL: "https://paper.example.com"},
			Real:  KiwoomProfile{AppKey: "rk", AppSecret: "rs", HostURL: "https://real.example.com"},
		}

		profile, err := k.ResolveProfile()
		if err != nil {
			t.Fatalf("ResolveProfile() error = %v", err)
		}
		if profile.Mode != "paper" {
			t.Errorf("Mode = %q, want paper", profile.Mode)
		}
		if profile.AppKey != "pk" || profile.HostURL != "https://paper.example.com" {
			t.Errorf("profile = %+v, want the paper credentials", profile)
		}
	})

	t.Run("real mode picks the real profile", func(t *testing.T) {
		k := Kiwoom{
			Mode: "REAL",
			Real: KiwoomProfile{AppKey: "rk", AppSecret: "rs", HostURL: "https://real.example.com"},
		}

		profile, err := k.ResolveProfile()
		if err != nil {
			t.Fatalf("ResolveProfile() error = %v", err)
		}
		if profile.Mode != "real" || profile.AppKey != "rk" {
			t.Errorf("profile = %+v, want the real credentials", profile)
		}
	})

	t.Run("generic overrides win over the profile", func(t *testing.T) {
		k := Kiwoom{
			Mode:    "paper",
			AppKey:  "generic-key",
			BaseURL: "https://override.example.com/",
			Paper:   KiwoomProfile{AppKey: "pk", AppSecret: "ps", HostURL: "https://paper.example.com"},
		}

		profile, err := k.ResolveProfile()
		if err != nil {
			t.Fatalf("ResolveProfile() error = %v", err)
		}
		if profile.AppKey != "generic-key" {
			t.Errorf("AppKey = %q, want generic-key", profile.AppKey)
		}
		if profile.AppSecret != "ps" {
			t.Errorf("AppSecret = %q, want ps from the profile", profile.AppSecret)
		}
		if profile.HostURL != "https://override.example.com" {
			t.Errorf("HostURL = %q, want the trimmed override", profile.HostURL)
		}
	})

	t.Run("missing vars are reported by concrete names", func(t *testing.T) {
		k := Kiwoom{Mode: "real", Real: KiwoomProfile{AppKey: "rk"}}

		_, err := k.ResolveProfile()
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("error type = %T, want *ConfigError", err)
		}

		want := []string{"KIWOOM_REAL_APP_SECRET", "KIWOOM_REAL_HOST_URL"}
		if len(cfgErr.MissingVars) != len(want) {
			t.Fatalf("MissingVars = %v, want %v", cfgErr.MissingVars, want)
		}
		for i := range want {
			if cfgErr.MissingVars[i] != want[i] {
				t.Errorf("MissingVars[%d] = %q, want %q", i, cfgErr.MissingVars[i], want[i])
			}
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		k := Kiwoom{Mode: "sandbox"}

		_, err := k.ResolveProfile()
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("error type = %T, want *ConfigError", err)
		}
		if len(cfgErr.MissingVars) != 0 {
			t.Errorf("MissingVars = %v, want none for an invalid mode", cfgErr.MissingVars)
		}
	})
}
