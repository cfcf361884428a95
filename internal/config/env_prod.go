//go:build !dev

package config

func loadDotEnv([]string) error { return nil }
