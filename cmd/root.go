/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Exit codes
const (
	ExitSetupFailure = -1 // World, parameters, profiling or config could not be set up
	ExitRunFailure   = 1  // A rank failed to load, exchange or assemble
)

// mustFlag unwraps a flag lookup. A lookup fails only when the flag is not
// defined with that type, which is a programming error.
func mustFlag[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gotpfa",
	Short: "Distributed TPFA pressure matrix assembly",
	Long: `
Assembles the two point flux approximation pressure matrix of a partitioned,
tagged 3D mesh, one rank per partition.

gotpfa generate -n 3          # write part_mesh.yaml, a 3 way partitioned box
gotpfa assemble -n 3 -p       # assemble and print the matrix`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(ExitRunFailure)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gotpfa.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(ExitSetupFailure)
		}

		// Search config in home directory with name ".gotpfa" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".gotpfa")
	}

	viper.SetEnvPrefix("gotpfa")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Printf("error: unable to read config file %s: %s\n", cfgFile, err)
		os.Exit(ExitSetupFailure)
	}
}
