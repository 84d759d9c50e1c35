// control/load.go
// Author: momentics <momentics@gmail.com>
//
// TOML configuration loading with strict key checking.

package control

import (
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/momentics/hioload-ipc/api"
)

// LoadFile decodes the TOML file at path into v. File keys that do not map
// onto v are rejected, which keeps configs honest about typos.
func LoadFile(path string, v any) error {
	meta, err := toml.DecodeFile(path, v)
	if err != nil {
		return api.NewError(api.ErrCodeInvalidArgument, "parse config file").
			WithContext("path", path).
			WithContext("cause", err.Error())
	}
	return checkDecoded(meta)
}

// Load decodes TOML data into v with the same strictness as LoadFile.
func Load(data string, v any) error {
	meta, err := toml.Decode(data, v)
	if err != nil {
		return api.NewError(api.ErrCodeInvalidArgument, "parse config").
			WithContext("cause", err.Error())
	}
	return checkDecoded(meta)
}

func checkDecoded(meta toml.MetaData) error {
	und := meta.Undecoded()
	if len(und) == 0 {
		return nil
	}
	keys := make([]string, len(und))
	for i, k := range und {
		keys[i] = k.String()
	}
	return api.NewError(api.ErrCodeInvalidArgument, "unknown config keys").
		WithContext("keys", strings.Join(keys, ", "))
}
