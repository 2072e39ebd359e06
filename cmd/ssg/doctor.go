package main

import (
	"errors"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/3-lines-studio/ssg/internal/adapters/cli"
	"github.com/3-lines-studio/ssg/internal/adapters/fs"
	"github.com/3-lines-studio/ssg/internal/usecase"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the project and toolchain are ready to build",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		doctor := usecase.NewDoctorService(fs.NewOSFileSystem(), cli.NewOutput(), exec.LookPath)
		if !doctor.Run(cfg) {
			return errors.New("doctor found problems")
		}
		return nil
	},
}
