package toolrun

import (
	"context"

	"pdfsift/logger"
	"pdfsift/permission"
)

// Exiftool extracts encryption and user access metadata.
type Exiftool struct {
	Path   string
	Runner Runner
}

// Args returns the argument list used for one file.
func (x *Exiftool) Args(workingPath string) []string {
	return []string{"-a", "-UserAccess", "-Encryption", "-s", workingPath, "-j"}
}

// ExtractPermissions never fails: any problem yields the zero record and a
// warning.
func (x *Exiftool) ExtractPermissions(ctx context.Context, workingPath string) permission.Record {
	r := x.Runner
	if r == nil {
		r = ExecRunner{}
	}
	res, err := r.Run(ctx, x.Path, x.Args(workingPath)...)
	if err != nil {
		logger.Warnf("exiftool failed on %s: %v", workingPath, err)
		return permission.Record{}
	}
	rec, err := permission.ParseExiftoolJSON(res.Stdout)
	if err != nil {
		logger.Warnf("exiftool output for %s ignored: %v", workingPath, err)
		return permission.Record{}
	}
	logger.Debugf("%s: encrypted=%t user_access=%t access=%s", workingPath, rec.Encrypted, rec.UserAccessPresent, rec.Access)
	return rec
}
