// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"texpressocore/internal/artifacts"
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a texpresso-core project",
	Long: `Creates a .texpresso directory with a default config.yaml in the
given directory (or the current directory), the way 'git init' prepares
a repo.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absDir, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	projectDir := filepath.Join(absDir, ".texpresso")
	if _, err := os.Stat(projectDir); err == nil {
		fmt.Printf("Reinitialized existing project in %s\n", projectDir)
	} else {
		if err := os.MkdirAll(projectDir, 0755); err != nil {
			return fmt.Errorf("failed to create .texpresso directory: %w", err)
		}
		fmt.Printf("Initialized empty project in %s\n", projectDir)
	}

	configPath := filepath.Join(projectDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("  config.yaml already exists (not modified)")
	} else {
		if err := os.WriteFile(configPath, artifacts.ProjectConfig, 0644); err != nil {
			return fmt.Errorf("failed to write config.yaml: %w", err)
		}
		fmt.Println("  created config.yaml")
	}

	return nil
}
