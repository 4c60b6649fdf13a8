//go:build !unix

package rcc

import "os/exec"

func configureProcessGroup(*exec.Cmd) {}
