package pipeline

import (
	"os"
	"os/user"
	"strconv"

	"github.com/cockroachdb/errors"
)

// HubChownUser is the system account collected, returned, and feedback
// files are chowned to, matching original_source/rudaux/rudaux/submission.py's
// hardcoded pwd.getpwnam("jupyter").
const HubChownUser = "jupyter"

func osChown(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}

// chownToUser hands a collected/returned file over to the hub's execution
// user, grounded on submission.py's pwd.getpwnam("jupyter") + os.chown
// calls. Defined as a package-level var so tests can stub it out without
// needing real OS users.
var chownToUser = func(path, username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return errors.Wrapf(err, "lookup user %s", username)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return errors.Wrap(err, "parse uid")
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return errors.Wrap(err, "parse gid")
	}
	return chownFn(path, uid, gid)
}

// chownFn wraps os.Chown so tests can avoid needing real OS permissions.
var chownFn = osChown
