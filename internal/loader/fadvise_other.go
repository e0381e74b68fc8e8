//go:build !linux

package loader

import "os"

func adviseSequential(*os.File) {}
