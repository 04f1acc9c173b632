//go:build unix

package monit

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

// applyCredential runs c as the given user and group
func applyCredential(c *exec.Cmd, userName, groupName string) error {
	if userName == "" && groupName == "" {
		return nil
	}
	cred := &syscall.Credential{
		Uid: uint32(syscall.Getuid()),
		Gid: uint32(syscall.Getgid()),
	}
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return fmt.Errorf("lookup user %s: %w", userName, err)
		}
		uid, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return fmt.Errorf("parse uid %s: %w", u.Uid, err)
		}
		gid, err := strconv.ParseUint(u.Gid, 10, 32)
		if err != nil {
			return fmt.Errorf("parse gid %s: %w", u.Gid, err)
		}
		cred.Uid = uint32(uid)
		cred.Gid = uint32(gid)
	}
	if groupName != "" {
		gid, err := lookupGID(groupName)
		if err != nil {
			return err
		}
		cred.Gid = gid
	}
	// Nothing to switch when the target is the current identity.
	if int(cred.Uid) == syscall.Getuid() && int(cred.Gid) == syscall.Getgid() {
		return nil
	}
	if c.SysProcAttr == nil {
		c.SysProcAttr = &syscall.SysProcAttr{}
	}
	c.SysProcAttr.Credential = cred
	return nil
}

// lookupIDs resolves the numeric owner and group used for chown
func lookupIDs(userName, groupName string) (int, int, error) {
	uid, gid := -1, -1
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return 0, 0, fmt.Errorf("lookup user %s: %w", userName, err)
		}
		n, err := strconv.Atoi(u.Uid)
		if err != nil {
			return 0, 0, fmt.Errorf("parse uid %s: %w", u.Uid, err)
		}
		uid = n
	}
	if groupName != "" {
		g, err := lookupGID(groupName)
		if err != nil {
			return 0, 0, err
		}
		gid = int(g)
	}
	return uid, gid, nil
}

func lookupGID(groupName string) (uint32, error) {
	g, err := user.LookupGroup(groupName)
	if err != nil {
		return 0, fmt.Errorf("lookup group %s: %w", groupName, err)
	}
	gid, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse gid %s: %w", g.Gid, err)
	}
	return uint32(gid), nil
}
