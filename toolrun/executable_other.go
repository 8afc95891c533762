//go:build !unix

package toolrun

func warnIfNotExecutable(string) {}
