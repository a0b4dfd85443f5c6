// Package artifacts embeds the default YAML configuration files
// internal/config writes out on first run.
package artifacts

import _ "embed"

//go:embed global/settings.yaml
var GlobalSettings []byte

//go:embed global/project_config.yaml
var ProjectConfig []byte
