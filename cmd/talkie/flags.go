package main

import (
	"github.com/spf13/pflag"
)

// bindFlags maps config keys onto flags. A flag only overrides the config
// when it was set on the command line.
func bindFlags(lookup func(string) *pflag.Flag, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, lookup(name)); err != nil {
			panic(err)
		}
	}
}
