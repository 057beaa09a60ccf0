//go:build mage

/*
figtool
Copyright (C) 2024 Callan Barrett

This file is part of figtool.

figtool is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

figtool is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with figtool.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/joho/godotenv/autoload"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var (
	cwd, _         = os.Getwd()
	binDir         = filepath.Join(cwd, "_bin")
	binReleasesDir = filepath.Join(binDir, "releases")
	upxBin         = os.Getenv("UPX_BIN")
	mainPath       = filepath.Join(cwd, "cmd", "figtool")
)

type variant struct {
	name    string
	bin     string
	ldFlags string
}

var variants = []variant{
	{
		name:    "figtool",
		bin:     "figtool",
		ldFlags: "-lnfc -lusb",
	},
}

func getVariant(name string) *variant {
	for _, v := range variants {
		if v.name == name {
			return &v
		}
	}
	return nil
}

func binName(v variant) string {
	if runtime.GOOS == "windows" {
		return v.bin + ".exe"
	}
	return v.bin
}

func cleanPlatform(name string) {
	_ = sh.Rm(filepath.Join(binDir, name))
}

func Clean() {
	_ = sh.Rm(binDir)
}

func buildVariant(v variant, out string) error {
	// winscard is loaded at runtime and libnfc isn't available
	if runtime.GOOS == "windows" {
		return sh.RunV("go", "build", "-o", out, mainPath)
	}

	env := map[string]string{
		"CGO_ENABLED": "1",
		"CGO_LDFLAGS": v.ldFlags,
	}
	return sh.RunWithV(env, "go", "build", "-o", out, mainPath)
}

// Build compiles a variant of figtool for the current platform, or every
// variant if "all" is given.
func Build(name string) error {
	platform := runtime.GOOS + "_" + runtime.GOARCH

	if name == "all" {
		mg.Deps(func() { cleanPlatform(platform) })
		for _, v := range variants {
			fmt.Println("Building", v.name)
			err := buildVariant(v, filepath.Join(binDir, platform, binName(v)))
			if err != nil {
				return err
			}
		}
		return nil
	}

	v := getVariant(name)
	if v == nil {
		return fmt.Errorf("unknown variant: %s", name)
	}
	return buildVariant(*v, filepath.Join(binDir, platform, binName(*v)))
}

// Release builds a variant and compresses it into the releases folder.
func Release(name string) error {
	v := getVariant(name)
	if v == nil {
		return fmt.Errorf("unknown variant: %s", name)
	}
	if upxBin == "" {
		return fmt.Errorf("UPX_BIN is required for releases")
	}

	mg.Deps(mg.F(Build, name))

	platform := runtime.GOOS + "_" + runtime.GOARCH
	_ = os.MkdirAll(binReleasesDir, 0755)
	releaseBin := filepath.Join(binReleasesDir, platform+"_"+binName(*v))

	err := sh.Copy(releaseBin, filepath.Join(binDir, platform, binName(*v)))
	if err != nil {
		return fmt.Errorf("error copying binary: %w", err)
	}

	if runtime.GOOS != "windows" {
		err := os.Chmod(releaseBin, 0755)
		if err != nil {
			return fmt.Errorf("error chmod release bin: %w", err)
		}
	}

	return sh.RunV(upxBin, "-9", releaseBin)
}

func Test() {
	_ = sh.RunV("go", "test", "./...")
}

func Coverage() {
	_ = sh.RunV("go", "test", "-coverprofile", "coverage.out", "./...")
	_ = sh.RunV("go", "tool", "cover", "-html", "coverage.out")
	_ = sh.Rm("coverage.out")
}
