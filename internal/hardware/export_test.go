package hardware

import "golang.org/x/sys/unix"

// WithStatfs overrides the function reporting filesystem statistics.
func WithStatfs(statfs func(path string, st *unix.Statfs_t) error) Options {
	return func(o *options) {
		o.statfs = statfs
	}
}

// WithUname overrides the function reporting the kernel identity.
func WithUname(uname func(u *unix.Utsname) error) Options {
	return func(o *options) {
		o.uname = uname
	}
}
